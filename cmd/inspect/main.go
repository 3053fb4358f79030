// Command inspect dumps the message log of a chat database as a table.
// It opens Badger read-only, so it can run next to a live server.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

type storedMessage struct {
	ID        string         `json:"id"`
	RoomID    string         `json:"roomId"`
	SenderID  string         `json:"senderId"`
	Type      string         `json:"type"`
	Content   string         `json:"content"`
	FileID    string         `json:"fileId,omitempty"`
	Mentions  []string       `json:"mentions,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func main() {
	dbPath := flag.String("db", "./data", "Path to badger DB")
	prefix := flag.String("prefix", "msg:", "Prefix to scan")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	color.Bold.Printf("Scanning %s (prefix %q)\n\n", *dbPath, *prefix)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Room", "Time", "Sender", "Type", "Content", "Mentions"})
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

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			err := item.Value(func(v []byte) error {
				var msg storedMessage
				if err := json.Unmarshal(v, &msg); err != nil {
					// Not a message entry (user, room, file). Show it raw.
					table.Append([]string{string(item.Key()), "-", "-", "-", "RAW",
						fmt.Sprintf("%d bytes", len(v)), "-"})
					rows++
					return nil
				}

				content := msg.Content
				if len(content) > 60 {
					content = content[:57] + "..."
				}
				if msg.FileID != "" {
					content = fmt.Sprintf("[file %s] %s", msg.FileID, content)
				}

				table.Append([]string{
					shortKey(string(item.Key())),
					msg.RoomID,
					msg.Timestamp.UTC().Format("15:04:05"),
					msg.SenderID,
					msg.Type,
					content,
					strings.Join(msg.Mentions, " "),
				})
				rows++
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
	color.Green.Printf("\n%d entries\n", rows)
}

// shortKey truncates the message UUID for readability.
func shortKey(key string) string {
	parts := strings.Split(key, ":")
	if len(parts) >= 4 && len(parts[3]) > 8 {
		parts[3] = parts[3][:8]
		return strings.Join(parts, ":")
	}
	return key
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)
	return badger.Open(opts)
}
