package main

import (
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/driftpad/driftpad/pkg/editor"
	"github.com/driftpad/driftpad/pkg/models"
	"github.com/driftpad/driftpad/pkg/protocol"
)

var treeCmd = &cobra.Command{
	Use:   "tree <project-id>",
	Short: "Print a project's file tree",
	Args:  cobra.ExactArgs(1),
	RunE:  runTree,
}

var catCmd = &cobra.Command{
	Use:   "cat <file-id>",
	Short: "Print a file's content",
	Args:  cobra.ExactArgs(1),
	RunE:  runCat,
}

var newCmd = &cobra.Command{
	Use:   "new <project-id> <name>",
	Short: "Create a file or folder record",
	Args:  cobra.ExactArgs(2),
	RunE:  runNew,
}

var editCmd = &cobra.Command{
	Use:   "edit <file-id> <local-file>",
	Short: "Replace a file's content from a local file",
	Args:  cobra.ExactArgs(2),
	RunE:  runEdit,
}

var rmCmd = &cobra.Command{
	Use:   "rm <file-id>",
	Short: "Delete a record (folders delete their subtree)",
	Args:  cobra.ExactArgs(1),
	RunE:  runRm,
}

var watchCmd = &cobra.Command{
	Use:   "watch <project-id>",
	Short: "Follow live file events for a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Ask the AI assistant",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var (
	newFolder bool
	newParent string
	askAction string
)

func init() {
	newCmd.Flags().BoolVar(&newFolder, "folder", false, "create a folder instead of a file")
	newCmd.Flags().StringVar(&newParent, "parent", "", "parent folder record ID")
	askCmd.Flags().StringVar(&askAction, "action", "chat", "assistant action: chat, explain, refactor, fix, generate")
}

func readPassword() (string, error) {
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(passwordBytes), nil
}

func runTree(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	roots, err := c.Tree(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	printNodes(roots, 0)
	return nil
}

func printNodes(nodes []*models.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, n := range nodes {
		if n.IsFolder() {
			fmt.Printf("%s%s/\n", indent, n.Name)
			printNodes(n.Children, depth+1)
			continue
		}
		fmt.Printf("%s%s  (%s)\n", indent, n.Name, n.ID)
	}
}

func runCat(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	rc, err := c.GetFile(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Print(rc.Content)
	if !strings.HasSuffix(rc.Content, "\n") {
		fmt.Println()
	}
	return nil
}

func runNew(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}

	typ := models.TypeFile
	if newFolder {
		typ = models.TypeFolder
	}
	record, err := c.CreateFile(cmd.Context(), args[0], protocol.CreateFileRequest{
		Name:     args[1],
		Type:     typ,
		ParentID: newParent,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Created %s %s (%s)\n", record.Type, record.Path, record.ID)
	return nil
}

// runEdit loads a record into an editing session, replaces its content with
// the local file, and flushes the save. A failed save leaves the server
// record untouched.
func runEdit(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}

	rc, err := c.GetFile(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	session := editor.NewSession(c)
	tab, err := session.OpenFile(cmd.Context(), rc.Record)
	if err != nil {
		return err
	}
	session.UpdateContent(tab.ID, string(data))
	if err := session.Save(cmd.Context(), tab.ID); err != nil {
		return err
	}

	fmt.Printf("Saved %s (%d bytes)\n", rc.Path, len(data))
	return nil
}

func runRm(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	if err := c.DeleteFile(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Println("Deleted")
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stderr, "Watching for file events (Ctrl+C to stop)...")
	for ev := range c.Events(cmd.Context(), args[0]) {
		ts := time.Unix(ev.Timestamp, 0).Format("15:04:05")
		fmt.Printf("%s  %-6s  %s\n", ts, ev.Type, ev.Path)
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}

	resp, err := c.AssistantChat(cmd.Context(), protocol.AssistantRequest{
		Action:  askAction,
		Message: strings.Join(args, " "),
	})
	if err != nil {
		return err
	}
	fmt.Println(resp.Reply)
	return nil
}
