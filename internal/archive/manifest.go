package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tailscale/hujson"
)

// ManifestName is the required manifest entry.
const ManifestName = "manifest.json"

// FormatVersion is the manifest format this extractor understands.
const FormatVersion = "1"

type manifest struct {
	FormatVersion flexString     `json:"formatVersion"`
	Title         flexString     `json:"title"`
	Description   string         `json:"description"`
	Preamble      string         `json:"preamble"`
	SourceURL     string         `json:"sourceUrl"`
	PlayedFrom    string         `json:"playedFrom"`
	PlayedTo      string         `json:"playedTo"`
	NumberingMode string         `json:"numberingMode"`
	SharedEditors bool           `json:"sharedEditors"`
	Editors       stringList     `json:"editors"`
	Tags          stringList     `json:"tags"`
	Tours         []manifestTour `json:"tours"`
}

type manifestTour struct {
	Number     flexString         `json:"number"`
	IsWarmup   bool               `json:"isWarmup"`
	IsShootout bool               `json:"isShootout"`
	Editors    stringList         `json:"editors"`
	Preamble   string             `json:"preamble"`
	Comment    string             `json:"comment"`
	Questions  []manifestQuestion `json:"questions"`
	Blocks     []manifestBlock    `json:"blocks"`
}

type manifestBlock struct {
	Name      string             `json:"name"`
	Preamble  string             `json:"preamble"`
	Editors   stringList         `json:"editors"`
	Questions []manifestQuestion `json:"questions"`
}

type manifestQuestion struct {
	Number               flexString `json:"number"`
	Text                 string     `json:"text"`
	Answer               string     `json:"answer"`
	AcceptedAnswers      alternates `json:"acceptedAnswers"`
	RejectedAnswers      alternates `json:"rejectedAnswers"`
	Comment              string     `json:"comment"`
	Source               string     `json:"source"`
	Authors              stringList `json:"authors"`
	HostInstructions     string     `json:"hostInstructions"`
	HandoutText          string     `json:"handoutText"`
	HandoutAssetFileName string     `json:"handoutAssetFileName"`
	HandoutAssetURL      string     `json:"handoutAssetUrl"`
	CommentAssetFileName string     `json:"commentAssetFileName"`
	CommentAssetURL      string     `json:"commentAssetUrl"`
}

// parseManifest accepts JSON with comments and trailing commas.
func parseManifest(b []byte) (*manifest, error) {
	std, err := hujson.Standardize(b)
	if err != nil {
		return nil, fmt.Errorf("malformed manifest: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(std, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*f = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
	default:
		n, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return fmt.Errorf("expected string or number, got %s", b)
		}
		*f = flexString(strconv.FormatFloat(n, 'f', -1, 64))
	}
	return nil
}

// stringList accepts a JSON array of strings or a single string.
type stringList []string

func (l *stringList) UnmarshalJSON(b []byte) error {
	var many []string
	if err := json.Unmarshal(b, &many); err == nil {
		*l = cleanList(many)
		return nil
	}
	var one string
	if err := json.Unmarshal(b, &one); err != nil {
		return fmt.Errorf("expected string or array of strings, got %s", b)
	}
	*l = cleanList([]string{one})
	return nil
}

func cleanList(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// alternates accepts a string or an array, joined with "; ".
type alternates string

func (a *alternates) UnmarshalJSON(b []byte) error {
	var l stringList
	if err := l.UnmarshalJSON(b); err != nil {
		return err
	}
	*a = alternates(strings.Join(l, "; "))
	return nil
}
