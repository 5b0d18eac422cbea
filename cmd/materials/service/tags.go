package service

import (
	"strings"

	"github.com/samber/lo"
)

const maxTagLength = 64

// ParseTags splits a comma separated form value into normalised tags
func ParseTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return NormalizeTags(strings.Split(raw, ","))
}

// NormalizeTags trims tags, drops empty and over-long ones and removes
// duplicates, keeping first-seen order
func NormalizeTags(tags []string) []string {
	trimmed := lo.Map(tags, func(t string, _ int) string {
		return strings.TrimSpace(t)
	})
	kept := lo.Filter(trimmed, func(t string, _ int) bool {
		return t != "" && len(t) <= maxTagLength
	})
	return lo.Uniq(kept)
}
