package cmd

import (
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-aniwall/internal/history"
	"go-aniwall/internal/library"
)

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Print a stored wallpaper record as JSON",
	Long: `Prints the record of a wallpaper by id or by its place in the history.
The history itself is not changed.`,
}

func printRecord(id string) error {
	c, err := openLibrary().Load(id)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding record %s: %w", id, err)
	}
	fmt.Println(string(out))
	return nil
}

func getHistoryCmd(use, short string, move func(*history.Navigator) (string, bool)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, ok := move(history.Load(historyPath()))
			if !ok {
				log.Info("History is empty")
				return nil
			}
			return printRecord(id)
		},
	}
}

func init() {
	rootCmd.AddCommand(getCmd)
	getCmd.AddCommand(
		&cobra.Command{
			Use:     "id [ID]",
			Aliases: []string{"md5"},
			Short:   "Print the record for an id",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := library.ParseDigest(args[0])
				if err != nil {
					return err
				}
				return printRecord(id)
			},
		},
		getHistoryCmd("previous", "Print the record before the history cursor", (*history.Navigator).Prev),
		getHistoryCmd("current", "Print the record at the history cursor", (*history.Navigator).Current),
		getHistoryCmd("next", "Print the record after the history cursor", (*history.Navigator).Next),
	)
}
