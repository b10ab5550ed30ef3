package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-aniwall/internal/database"
	"go-aniwall/internal/helpers"
	"go-aniwall/internal/library"
	"go-aniwall/internal/models"
)

// dbCmd represents the base command for ledger operations
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Interact with the candidate status ledger",
	Long:  `View or verify the status entries recorded for every downloaded candidate.`,
}

var dbViewCmd = &cobra.Command{
	Use:   "view [ID]",
	Short: "View entries stored in the ledger, or the entry for one id",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDbView,
}

var dbVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify ledger entries against the wallpapers directory",
	Long: `Checks that every recorded candidate still has its record file and image,
and optionally that the image content still matches its MD5 id.
With --prune, entries whose record file is gone are dropped from the ledger.`,
	Args: cobra.NoArgs,
	RunE: runDbVerify,
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbViewCmd, dbVerifyCmd)

	dbViewCmd.Flags().StringP("status", "s", "", "Only show entries with this status (Pending, Cropped, Categorized, Error)")
	dbVerifyCmd.Flags().Bool("check-hash", true, "Perform MD5 check for existing files")
	dbVerifyCmd.Flags().Bool("prune", false, "Drop ledger entries whose record file is missing")
}

func runDbView(cmd *cobra.Command, args []string) error {
	statusFilter, _ := cmd.Flags().GetString("status")

	db, err := database.Open(globalConfig.DatabasePath)
	if err != nil {
		return fmt.Errorf("error opening database: %w", err)
	}
	defer db.Close()

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tStatus\tCategory\tVariant\tUpdated\tPath\tError")
	fmt.Fprintln(tw, "--\t------\t--------\t-------\t-------\t----\t-----")

	if len(args) == 1 {
		id, err := library.ParseDigest(args[0])
		if err != nil {
			return err
		}
		e, err := db.GetEntry(id)
		if err != nil {
			return fmt.Errorf("ledger entry %s: %w", id, err)
		}
		writeEntryRow(tw, e)
		return tw.Flush()
	}

	count := 0
	errFold := db.Entries(func(e models.LedgerEntry) error {
		if statusFilter != "" && e.Status != statusFilter {
			return nil
		}
		writeEntryRow(tw, e)
		count++
		return nil
	})
	if errFold != nil {
		log.WithError(errFold).Error("Error occurred during database scan (Fold)")
	}

	if err := tw.Flush(); err != nil {
		log.WithError(err).Error("Error flushing table writer for db view")
	}
	log.Infof("Displayed %d entries.", count)
	return errFold
}

func writeEntryRow(w io.Writer, e models.LedgerEntry) {
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
		e.ID, e.Status, e.Category, e.PreferredVariant,
		e.UpdatedAt.Format(time.DateTime), e.LocalPath, e.ErrorDetails)
}

const reasonRecordMissing = "Record Missing"

type verificationProblem struct {
	Entry  models.LedgerEntry
	Reason string
}

func runDbVerify(cmd *cobra.Command, args []string) error {
	log.Info("Verifying ledger entries against filesystem...")
	checkHashFlag, _ := cmd.Flags().GetBool("check-hash")
	pruneFlag, _ := cmd.Flags().GetBool("prune")

	db, err := database.Open(globalConfig.DatabasePath)
	if err != nil {
		return fmt.Errorf("error opening database: %w", err)
	}
	defer db.Close()

	lib := openLibrary()
	var total, ok int
	var problems []verificationProblem

	errFold := db.Entries(func(e models.LedgerEntry) error {
		total++
		fields := log.Fields{"id": e.ID, "status": e.Status}

		switch {
		case !lib.Has(e.ID):
			problems = append(problems, verificationProblem{e, reasonRecordMissing})
			log.WithFields(fields).Error("[MISSING] Record file not found.")
		case e.LocalPath == "":
			problems = append(problems, verificationProblem{e, "No Path"})
			log.WithFields(fields).Warn("[NO PATH] Entry has no local path.")
		default:
			if _, statErr := os.Stat(e.LocalPath); statErr != nil {
				problems = append(problems, verificationProblem{e, "Image Missing"})
				log.WithFields(fields).WithError(statErr).Error("[MISSING] Image not found.")
				return nil
			}
			if checkHashFlag && !helpers.CheckMD5(e.LocalPath, e.ID) {
				problems = append(problems, verificationProblem{e, "Hash Mismatch"})
				log.WithFields(fields).Warn("[MISMATCH] Image exists but MD5 does not match its id.")
				return nil
			}
			ok++
			log.WithFields(fields).Debug("[OK] Entry verified.")
		}
		return nil
	})
	if errFold != nil {
		return fmt.Errorf("error scanning database: %w", errFold)
	}

	fmt.Println("----- Verification Summary -----")
	fmt.Printf(" Entries: %d\n", total)
	fmt.Printf(" OK: %d\n", ok)
	fmt.Printf(" Problems: %d\n", len(problems))
	for _, p := range problems {
		fmt.Printf("  %s\t%s\t%s\n", p.Entry.ID, p.Reason, p.Entry.LocalPath)
	}
	fmt.Println("--------------------------------")

	if pruneFlag {
		// Entries cannot be deleted while Fold holds the read lock.
		var pruned int
		problems, pruned = pruneOrphans(db, problems)
		log.Infof("Pruned %d ledger entries without a record.", pruned)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%d ledger entries failed verification", len(problems))
	}
	return nil
}

// pruneOrphans deletes the entries of problems whose record is missing and returns
// the problems that remain.
func pruneOrphans(db *database.DB, problems []verificationProblem) ([]verificationProblem, int) {
	var kept []verificationProblem
	pruned := 0
	for _, p := range problems {
		if p.Reason != reasonRecordMissing {
			kept = append(kept, p)
			continue
		}
		if err := db.DeleteEntry(p.Entry.ID); err != nil {
			log.WithError(err).WithField("id", p.Entry.ID).Error("Failed to prune ledger entry")
			kept = append(kept, p)
			continue
		}
		pruned++
	}
	return kept, pruned
}
