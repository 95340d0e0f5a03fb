package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/agency-crm/internal/backup"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create a database backup",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := backup.NewService(cfg.Backup, cfg.Store)
		artifact, err := svc.Create(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("created %s (%d bytes)\n", artifact.Filename, artifact.Size)
		return nil
	},
}

var backupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "List stored backups, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := backup.NewService(cfg.Backup, cfg.Store)
		artifacts, err := svc.List()
		if err != nil {
			return err
		}
		if len(artifacts) == 0 {
			fmt.Println("no backups")
			return nil
		}
		for _, a := range artifacts {
			fmt.Printf("%s  %10d bytes  %s\n", a.ID, a.Size, a.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <backup-id>",
	Short: "Replace the database with a stored backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := backup.NewService(cfg.Backup, cfg.Store)
		if err := svc.Restore(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("restored %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(backupsCmd)
	rootCmd.AddCommand(restoreCmd)
}
