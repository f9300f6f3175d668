package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "calembot",
		Short:         "calembot: a pun-replying push-notification bot",
		Long:          "calembot keeps a persistent push channel open to receive direct-message notifications and replies with puns when a message ends in a trigger word it knows.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(app),
		newStatusCmd(app),
		newDictCmd(app),
	)

	return rootCmd
}
