package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// groupwareTables are the tables the pgstore fetch queries touch.
var groupwareTables = []string{
	"object_acl",
	"company",
	"address",
	"telephone",
	"company_value",
	"project",
	"project_company_assignment",
	"attachment",
	"doc",
	"job",
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Verify the groupware schema",
	Long:  `Check that the connected database carries every table the permission queries need.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		missing := 0
		for _, table := range groupwareTables {
			var one int
			err := db.QueryRowContext(cmd.Context(),
				"SELECT 1 FROM information_schema.tables WHERE table_name = $1", table,
			).Scan(&one)
			if err != nil {
				fmt.Printf("  ✗ %s\n", table)
				missing++
				continue
			}
			fmt.Printf("  ✓ %s\n", table)
		}

		if missing > 0 {
			return fmt.Errorf("%d of %d tables missing", missing, len(groupwareTables))
		}
		fmt.Println("schema ok")
		return nil
	},
}
