// driftctl is the command-line client for a Driftpad server: log in, manage
// projects, browse trees, edit file records, and follow live file events.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftpad/driftpad/pkg/client"
)

var (
	serverURL string
	timeout   time.Duration
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "driftctl",
	Short: "Driftpad command-line client",
	Long: `driftctl talks to a Driftpad server.

Log in once with 'driftctl login'; the token pair is saved to your user
config directory and refreshed automatically on later invocations.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var loginCmd = &cobra.Command{
	Use:   "login <username>",
	Short: "Authenticate and save a token pair",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke the saved refresh token",
	RunE:  runLogout,
}

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List your projects",
	RunE:  runProjects,
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectCreate,
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete <project-id>",
	Short: "Delete a project and all its records",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectDelete,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "server base URL (default: saved login)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")

	projectsCmd.AddCommand(projectCreateCmd)
	projectsCmd.AddCommand(projectDeleteCmd)

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(catCmd)
	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(askCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newClient builds a client from the saved token file, refreshing the access
// token when it is about to expire.
func newClient(cmd *cobra.Command) (*client.Client, error) {
	tf, err := client.LoadToken()
	if err != nil {
		return nil, fmt.Errorf("not logged in, run 'driftctl login' first")
	}

	base := serverURL
	if base == "" {
		base = tf.Server
	}
	c := client.New(client.Config{BaseURL: base, Timeout: timeout})
	c.SetTokens(tf.AccessToken, tf.RefreshToken)

	if tf.AccessExpired(30 * time.Second) {
		resp, err := c.Refresh(cmd.Context())
		if err != nil {
			return nil, fmt.Errorf("session expired, run 'driftctl login' again: %w", err)
		}
		tf.AccessToken = resp.AccessToken
		tf.AccessExpiresAt = resp.AccessExpiresAt
		tf.RefreshToken = resp.RefreshToken
		tf.RefreshExpiresAt = resp.RefreshExpiresAt
		if err := client.SaveToken(tf); err != nil {
			return nil, fmt.Errorf("save refreshed token: %w", err)
		}
	}
	return c, nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	if serverURL == "" {
		return fmt.Errorf("--server is required for login")
	}
	username := args[0]

	fmt.Fprintf(os.Stderr, "Password for %s: ", username)
	password, err := readPassword()
	if err != nil {
		return err
	}

	c := client.New(client.Config{BaseURL: serverURL, Timeout: timeout})
	resp, err := c.Login(cmd.Context(), username, password)
	if err != nil {
		return err
	}

	tf := &client.TokenFile{
		AccessToken:      resp.AccessToken,
		AccessExpiresAt:  resp.AccessExpiresAt,
		RefreshToken:     resp.RefreshToken,
		RefreshExpiresAt: resp.RefreshExpiresAt,
		Server:           serverURL,
		Username:         username,
	}
	if err := client.SaveToken(tf); err != nil {
		return fmt.Errorf("save token: %w", err)
	}

	fmt.Printf("Logged in as %s\n", resp.User.Username)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	if err := c.Logout(cmd.Context()); err != nil {
		fmt.Fprintln(os.Stderr, "warning: server-side revocation failed:", err)
	}
	if err := client.DeleteToken(); err != nil && !os.IsNotExist(err) {
		return err
	}
	fmt.Println("Logged out")
	return nil
}

func runProjects(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	projects, err := c.Projects(cmd.Context())
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		fmt.Println("No projects")
		return nil
	}
	for _, p := range projects {
		fmt.Printf("%-36s  %s\n", p.ID, p.Name)
	}
	return nil
}

func runProjectCreate(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	p, err := c.CreateProject(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Created project %s (%s)\n", p.Name, p.ID)
	return nil
}

func runProjectDelete(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	if err := c.DeleteProject(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Println("Deleted")
	return nil
}
