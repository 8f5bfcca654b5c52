// Package sampletools declares the tools served by the nanomcp demo server.
//
// The table in tools_gen.go is generated from the //mcp:tool declarations
// of this package.
package sampletools

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/nanomcp/tools"
)

//go:generate go run github.com/effective-security/nanomcp/cmd/nanomcpgen

// Add returns the sum of two integers.
//
//mcp:tool name=add
//mcp:param a description="first addend"
//mcp:param b description="second addend"
func Add(ctx context.Context, a int, b int) (int, error) {
	if (b > 0 && a > math.MaxInt-b) || (b < 0 && a < math.MinInt-b) {
		return 0, errors.Errorf("%d + %d overflows", a, b)
	}
	return a + b, nil
}

// Echo repeats the message.
//
//mcp:tool
//mcp:param times description="number of repetitions between 1 and 10"
func Echo(message string, times *int) string {
	n := 1
	if times != nil {
		n = min(max(*times, 1), 10)
	}
	return strings.TrimSpace(strings.Repeat(message+" ", n))
}

// Report is a weather report
type Report struct {
	City        string  `json:"city"`
	Temperature float64 `json:"temperature"`
	Unit        string  `json:"unit"`
	Conditions  string  `json:"conditions,omitempty"`
}

var conditions = []string{"sunny", "cloudy", "rain", "snow", "fog"}

// GetWeather reports the current weather of a city.
//
//mcp:tool
//mcp:param city description="city name"
//mcp:param unit enum="celsius|fahrenheit" required=false
func GetWeather(ctx context.Context, city string, unit string) (*Report, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return nil, errors.New("city must not be empty")
	}
	if unit == "" {
		unit = "celsius"
	}

	// the sample weather is stable per city
	h := xxhash.Sum64String(strings.ToLower(city))
	celsius := float64(h%450)/10 - 10
	res := &Report{
		City:        city,
		Temperature: celsius,
		Unit:        unit,
		Conditions:  conditions[int(h>>32)%len(conditions)],
	}
	if unit == "fahrenheit" {
		res.Temperature = math.Round((celsius*9/5+32)*10) / 10
	}
	return res, nil
}

// Kind of a search result
type Kind string

// Kinds
const (
	KindDocument Kind = "document"
	KindImage    Kind = "image"
	KindVideo    Kind = "video"
)

// Filter narrows a search
type Filter struct {
	Kinds []Kind `json:"kinds,omitempty" jsonschema:"description=kinds to include"`
	Limit int    `json:"limit,omitempty" jsonschema:"description=maximum number of results"`
}

// Result of a search
type Result struct {
	Title string  `json:"title"`
	Kind  Kind    `json:"kind"`
	Score float64 `json:"score"`
}

var catalog = []Result{
	{Title: "Protocol overview", Kind: KindDocument},
	{Title: "Session state machine", Kind: KindDocument},
	{Title: "Tool compiler walkthrough", Kind: KindVideo},
	{Title: "Session state diagram", Kind: KindImage},
	{Title: "Transport reference", Kind: KindDocument},
}

// Search looks up the query in the sample catalog.
//
//mcp:tool
//mcp:param query description="words to match"
func Search(ctx context.Context, query string, filter *Filter) ([]Result, error) {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return nil, errors.New("query must not be empty")
	}

	var kinds map[Kind]bool
	limit := len(catalog)
	if filter != nil {
		if len(filter.Kinds) > 0 {
			kinds = map[Kind]bool{}
			for _, k := range filter.Kinds {
				kinds[k] = true
			}
		}
		if filter.Limit > 0 {
			limit = filter.Limit
		}
	}

	res := []Result{}
	for _, r := range catalog {
		if kinds != nil && !kinds[r.Kind] {
			continue
		}
		title := strings.ToLower(r.Title)
		matched := 0
		for _, w := range words {
			if strings.Contains(title, w) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		r.Score = float64(matched) / float64(len(words))
		res = append(res, r)
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].Score > res[j].Score })
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

// Node of a tree
type Node struct {
	Label    string  `json:"label"`
	Children []*Node `json:"children,omitempty" mcp:"recursive"`
}

// CountNodes returns the number of nodes of the tree.
//
//mcp:tool
func CountNodes(root Node) int {
	n := 1
	for _, c := range root.Children {
		if c != nil {
			n += CountNodes(*c)
		}
	}
	return n
}

// Sleep waits for the duration, reporting progress every tenth of it.
//
//mcp:tool
//mcp:param ms description="duration in milliseconds"
func Sleep(ctx context.Context, ms int) error {
	if ms <= 0 {
		return nil
	}
	step := time.Duration(ms) * time.Millisecond / 10
	for i := 1; i <= 10; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(step):
		}
		tools.ReportProgress(ctx, float64(i), 10, "")
	}
	return nil
}
