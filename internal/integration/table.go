package integration

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/abelzeko/river-alert/internal/entities"
	"golang.org/x/text/unicode/norm"
)

// cleanText NFC-normalizes and collapses whitespace so Thai labels written
// with different code point sequences compare equal.
func cleanText(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// parseStationRow finds the row carrying spec.Anchor and reads the
// configured cells from it. Cells are resolved by header label when one is
// configured and present, else by position.
func parseStationRow(doc *goquery.Document, spec TableSpec) (entities.RawReading, error) {
	anchor := cleanText(spec.Anchor)
	selector := spec.AnchorSelector
	if selector == "" {
		selector = "th, td"
	}

	anchorCell := doc.Find(selector).FilterFunction(func(_ int, s *goquery.Selection) bool {
		// skip layout cells that wrap a nested table
		return s.Find("th, td").Length() == 0 && strings.Contains(cleanText(s.Text()), anchor)
	}).First()
	if anchorCell.Length() == 0 {
		return entities.RawReading{}, fmt.Errorf("station %q not found in page", spec.Anchor)
	}
	row := anchorCell.Closest("tr")
	if row.Length() == 0 {
		return entities.RawReading{}, fmt.Errorf("station %q is not inside a table row", spec.Anchor)
	}

	cells := row.Children().Filter("th, td")
	headers := headerLabels(row.Closest("table"))

	cellText := func(field string, col Column) (string, error) {
		if col.IsZero() {
			return "", nil
		}
		idx := -1
		if col.Header != "" {
			want := cleanText(col.Header)
			for i, h := range headers {
				if strings.Contains(h, want) {
					idx = i
					break
				}
			}
		}
		if idx < 0 && col.Index != nil {
			idx = *col.Index
		}
		if idx < 0 {
			return "", fmt.Errorf("column %q for %s not found", col.Header, field)
		}
		if idx >= cells.Length() {
			return "", fmt.Errorf("row for %q has %d cells, %s expected at %d", spec.Anchor, cells.Length(), field, idx)
		}
		return cleanText(cells.Eq(idx).Text()), nil
	}

	raw := entities.RawReading{StationName: cleanText(anchorCell.Text())}
	var err error
	if raw.WaterLevel, err = cellText("water_level", spec.WaterLevel); err != nil {
		return entities.RawReading{}, err
	}
	if raw.BankLevel, err = cellText("bank_level", spec.BankLevel); err != nil {
		return entities.RawReading{}, err
	}
	if raw.ObservedAt, err = cellText("observed_at", spec.ObservedAt); err != nil {
		return entities.RawReading{}, err
	}
	if spec.StatusSelector != "" {
		raw.Status = cleanText(row.Find(spec.StatusSelector).First().Text())
	} else if raw.Status, err = cellText("status", spec.Status); err != nil {
		return entities.RawReading{}, err
	}
	return raw, nil
}

// headerLabels returns the cleaned labels of the table's last header row
func headerLabels(table *goquery.Selection) []string {
	if table.Length() == 0 {
		return nil
	}
	headerRow := table.Find("thead tr").Last()
	if headerRow.Length() == 0 {
		headerRow = table.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
			return tr.Children().Filter("td").Length() == 0 && tr.Children().Filter("th").Length() > 0
		}).First()
	}

	var labels []string
	headerRow.Children().Filter("th, td").Each(func(_ int, s *goquery.Selection) {
		labels = append(labels, cleanText(s.Text()))
	})
	return labels
}
