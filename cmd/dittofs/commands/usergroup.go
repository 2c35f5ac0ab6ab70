package commands

import "github.com/spf13/cobra"

// userCmd and groupCmd adapt the flag-based UserCommand/GroupCommand (see
// user.go, group.go) into cobra subcommands. Both commands parse their own
// sub-flags internally via flag.FlagSet, so RunE just forwards args as-is.
var userCmd = &cobra.Command{
	Use:                "user",
	Short:              "Manage users (add, delete, list, passwd, grant, revoke, groups, join, leave)",
	DisableFlagParsing: true,
	SilenceUsage:       true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return NewUserCommand().Run(args)
	},
}

var groupCmd = &cobra.Command{
	Use:                "group",
	Short:              "Manage groups (add, delete, list, members, grant, revoke)",
	DisableFlagParsing: true,
	SilenceUsage:       true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return NewGroupCommand().Run(args)
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(groupCmd)
}
