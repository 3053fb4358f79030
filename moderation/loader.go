package moderation

import (
	"bufio"
	"bytes"
	"embed"
	"io/fs"
	"strings"

	apperrors "chat-relay/errors"
)

//go:embed banned/*.txt
var bannedFS embed.FS

// BannedData carries the loaded term list plus metadata for logging.
type BannedData struct {
	Terms     []string
	Languages []string
}

// LoadBannedTerms reads the embedded per-language dictionaries. Each .txt file
// is one language (e.g. "en.txt"), one term per line.
func LoadBannedTerms() (*BannedData, error) {
	return loadFrom(bannedFS, "banned")
}

func loadFrom(fsys fs.FS, path string) (*BannedData, error) {
	entries, err := fs.ReadDir(fsys, path)
	if err != nil {
		return nil, err
	}

	var languages []string
	unique := make(map[string]struct{})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		languages = append(languages, strings.TrimSuffix(entry.Name(), ".txt"))

		data, err := fs.ReadFile(fsys, path+"/"+entry.Name())
		if err != nil {
			return nil, err
		}

		// Scanner handles \n and \r\n line endings alike
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" && !strings.HasPrefix(line, "#") {
				unique[line] = struct{}{}
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	if len(unique) == 0 {
		return nil, apperrors.ErrEmptyWords
	}

	terms := make([]string, 0, len(unique))
	for t := range unique {
		terms = append(terms, t)
	}
	return &BannedData{Terms: terms, Languages: languages}, nil
}
