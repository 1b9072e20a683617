package main

import (
	"flag"
	"fmt"
	"os"

	"groupchat/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"
)

// inspect dumps the chat database as a table. The database is opened read-only
// so it can run next to a stopped server without touching its data.
func main() {
	dbPath := flag.String("db", "data/groupchat", "Path to badger DB")
	prefix := flag.String("prefix", "", "Key prefix to scan, e.g. msg: or user:id:")
	flag.Parse()

	if err := run(*dbPath, *prefix); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(dbPath, prefix string) error {
	db, err := badger.Open(badger.DefaultOptions(dbPath).
		WithReadOnly(true).
		WithLoggingLevel(badger.ERROR))
	if err != nil {
		return fmt.Errorf("opening badger: %w", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Type", "Time", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	rows := 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			row := repositories.Describe(item.KeyCopy(nil), value)
			table.Append([]string{row.Key, row.Type, row.Time, row.Detail})
			rows++
		}
		return nil
	})
	if err != nil {
		return err
	}

	table.Render()
	fmt.Printf("%d entries\n", rows)
	return nil
}
