package rules

import (
	"fmt"
	"time"

	"tidy-go/internal/tidy"
)

// SeedDestination is a folder the default rules point at, relative to the home directory.
type SeedDestination struct {
	Ref     tidy.DestinationRef
	RelPath string
}

// SeedDestinations are the token keys the default rules use.
var SeedDestinations = []SeedDestination{
	{Ref: tidy.DestinationRef{Key: "documents", DisplayName: "Documents"}, RelPath: "Documents"},
	{Ref: tidy.DestinationRef{Key: "pictures", DisplayName: "Pictures"}, RelPath: "Pictures"},
	{Ref: tidy.DestinationRef{Key: "screenshots", DisplayName: "Screenshots"}, RelPath: "Pictures/Screenshots"},
	{Ref: tidy.DestinationRef{Key: "music", DisplayName: "Music"}, RelPath: "Music"},
	{Ref: tidy.DestinationRef{Key: "videos", DisplayName: "Videos"}, RelPath: "Videos"},
	{Ref: tidy.DestinationRef{Key: "archives", DisplayName: "Archives"}, RelPath: "Documents/Archives"},
}

func seedRef(key string) tidy.DestinationRef {
	for _, d := range SeedDestinations {
		if d.Ref.Key == key {
			return d.Ref
		}
	}
	return tidy.DestinationRef{Key: key}
}

func anyExtension(exts ...string) []tidy.Condition {
	out := make([]tidy.Condition, len(exts))
	for i, e := range exts {
		out[i] = tidy.Condition{Type: tidy.ConditionExtensionEquals, Value: e}
	}
	return out
}

// DefaultRules returns the first-run rule set. IDs come from idgen; seed keys
// are fixed so that seeding twice never duplicates a rule.
func DefaultRules(idgen tidy.IDGenerator, now time.Time) ([]*tidy.Rule, error) {
	inputs := []tidy.RuleInput{
		{
			SeedKey:     "screenshots",
			Name:        "Screenshots",
			SortOrder:   10,
			Destination: seedRef("screenshots"),
			Conditions: []tidy.Condition{
				{Type: tidy.ConditionNameStartsWith, Value: "Screenshot"},
				{Type: tidy.ConditionExtensionEquals, Value: "png"},
			},
			Operator: tidy.OperatorAnd,
		},
		{
			SeedKey:         "pdf-documents",
			Name:            "PDF Documents",
			SortOrder:       20,
			Destination:     seedRef("documents"),
			LegacyCondition: tidy.Condition{Type: tidy.ConditionExtensionEquals, Value: "pdf"},
		},
		{
			SeedKey:     "images",
			Name:        "Images",
			SortOrder:   30,
			Destination: seedRef("pictures"),
			Conditions:  anyExtension("jpg", "jpeg", "png", "heic", "gif", "webp"),
			Operator:    tidy.OperatorOr,
		},
		{
			SeedKey:     "audio",
			Name:        "Audio",
			SortOrder:   40,
			Destination: seedRef("music"),
			Conditions:  anyExtension("mp3", "m4a", "flac", "wav", "ogg"),
			Operator:    tidy.OperatorOr,
		},
		{
			SeedKey:     "video",
			Name:        "Video",
			SortOrder:   50,
			Destination: seedRef("videos"),
			Conditions:  anyExtension("mp4", "mov", "mkv", "avi", "webm"),
			Operator:    tidy.OperatorOr,
		},
		{
			SeedKey:     "archives",
			Name:        "Archives",
			SortOrder:   60,
			Destination: seedRef("archives"),
			Conditions:  anyExtension("zip", "tar", "gz", "tgz", "7z", "rar"),
			Operator:    tidy.OperatorOr,
			Exclusions:  []tidy.Condition{{Type: tidy.ConditionNameContains, Value: "backup"}},
		},
	}

	out := make([]*tidy.Rule, 0, len(inputs))
	for _, in := range inputs {
		in.ID = idgen.New()
		in.Enabled = true
		in.CreatedAt = now
		rule, err := tidy.NewRule(in)
		if err != nil {
			return nil, fmt.Errorf("building seed rule %s: %w", in.SeedKey, err)
		}
		out = append(out, rule)
	}
	return out, nil
}

// GroupByDestination buckets files by the destination of the first matching
// enabled rule. Files that match nothing are grouped under the empty key.
func (e *Engine) GroupByDestination(files []tidy.File, rules []*tidy.Rule) map[string][]tidy.File {
	groups := make(map[string][]tidy.File)
	ordered := Sorted(Enabled(rules))
	for _, f := range files {
		key := ""
		for _, r := range ordered {
			if e.FileMatchesRule(f, r) {
				key = r.Destination.Key
				break
			}
		}
		groups[key] = append(groups[key], f)
	}
	return groups
}
