package cmd

import (
	"fmt"
	"math/rand"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go-aniwall/internal/history"
	"go-aniwall/internal/library"
)

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Set the wallpaper from a file, a stored record or the history",
}

var setFileCmd = &cobra.Command{
	Use:   "file [PATH]",
	Short: "Set any image file as wallpaper",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(args[0]); err != nil {
			return fmt.Errorf("cannot use %s: %w", args[0], err)
		}
		return newApplier().Apply(args[0])
	},
}

var setIdCmd = &cobra.Command{
	Use:     "id [ID]",
	Aliases: []string{"md5"},
	Short:   "Set a stored wallpaper by id and record it in the history",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := library.ParseDigest(args[0])
		if err != nil {
			return err
		}
		return withHistory(func(lib *library.Library, hist *history.Navigator) error {
			c, err := lib.Load(id)
			if err != nil {
				return err
			}
			if err := newApplier().Apply(c.DisplayPath()); err != nil {
				return err
			}
			hist.Push(c.ID)
			return nil
		})
	},
}

var setRandomCmd = &cobra.Command{
	Use:   "random",
	Short: "Set a random stored wallpaper other than the current one",
	RunE: func(cmd *cobra.Command, args []string) error {
		sel, err := newRandomSelector(viper.GetString("set.rating"), viper.GetString("set.category"))
		if err != nil {
			return err
		}
		return withHistory(func(lib *library.Library, hist *history.Navigator) error {
			all, err := lib.All()
			if err != nil {
				return err
			}
			current, _ := hist.Current()
			c, err := pickRandom(all, sel, current, rand.Shuffle)
			if err != nil {
				return err
			}
			log.WithFields(log.Fields{"id": c.ID, "category": c.Category, "rating": c.Rating}).Info("Picked wallpaper")
			if err := newApplier().Apply(c.DisplayPath()); err != nil {
				return err
			}
			hist.Push(c.ID)
			return nil
		})
	},
}

func historyCmd(use, short string, move func(*history.Navigator) (string, bool)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(func(lib *library.Library, hist *history.Navigator) error {
				id, ok := move(hist)
				if !ok {
					log.Info("History is empty")
					return nil
				}
				c, err := lib.Load(id)
				if err != nil {
					return err
				}
				return newApplier().Apply(c.DisplayPath())
			})
		},
	}
}

// withHistory loads the history, runs fn and saves the history afterwards.
func withHistory(fn func(lib *library.Library, hist *history.Navigator) error) error {
	hist := history.Load(historyPath())
	if err := fn(openLibrary(), hist); err != nil {
		return err
	}
	return history.Save(historyPath(), hist)
}

func init() {
	rootCmd.AddCommand(setCmd)
	setCmd.AddCommand(setFileCmd, setIdCmd, setRandomCmd,
		historyCmd("previous", "Step back in the history and set that wallpaper", (*history.Navigator).Prev),
		historyCmd("current", "Set the wallpaper at the history cursor again", (*history.Navigator).Current),
		historyCmd("next", "Step forward in the history and set that wallpaper", (*history.Navigator).Next),
	)

	setRandomCmd.Flags().String("rating", "safe", "Rating to pick from: safe|s, questionable|q, explicit|e or any")
	setRandomCmd.Flags().String("category", "liked", "Category to pick from: liked|l, disliked|d, borked|b or any")
	viper.BindPFlag("set.rating", setRandomCmd.Flags().Lookup("rating"))
	viper.BindPFlag("set.category", setRandomCmd.Flags().Lookup("category"))
}
