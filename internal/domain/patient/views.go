package patient

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/cloudreports/patients/internal/platform/session"
	"github.com/cloudreports/patients/web"
)

const (
	cellPrefix = "cell."
	origPrefix = "orig."
)

var menuLabels = map[session.Page]string{
	session.Home:       "Home",
	session.About:      "About",
	session.Services:   "Services",
	session.AddPatient: "Add Patient",
}

var menuPaths = map[session.Page]string{
	session.Home:       "/",
	session.About:      "/about",
	session.Services:   "/services",
	session.AddPatient: "/add",
}

func menuFor(s session.Session) []web.MenuItem {
	if !s.LoggedIn() {
		return nil
	}
	items := make([]web.MenuItem, 0, len(session.MenuPages))
	for _, p := range session.MenuPages {
		items = append(items, web.MenuItem{Label: menuLabels[p], Path: menuPaths[p], Active: p == s.Page})
	}
	return items
}

type downloadView struct {
	URL      string
	Filename string
}

type homeView struct {
	Name     string
	ID       string
	Editor   string
	Grid     *gridView
	Download *downloadView
}

type addView struct {
	Fields   []FormField
	Download *downloadView
}

type gridView struct {
	Columns []string
	Rows    []gridRow
}

type gridRow struct {
	Cells []gridCell
}

type gridCell struct {
	Column   string
	Value    string
	Input    string
	Original string
	Editable bool
}

// newGrid lays out matched rows for the editing table. Grid row i addresses
// the i-th match; audit columns are shown read-only.
func newGrid(columns []string, matches []Match) *gridView {
	g := &gridView{Columns: columns, Rows: make([]gridRow, 0, len(matches))}
	for i, m := range matches {
		row := gridRow{Cells: make([]gridCell, 0, len(columns))}
		for _, col := range columns {
			key := fmt.Sprintf("%d.%s", i, col)
			row.Cells = append(row.Cells, gridCell{
				Column:   col,
				Value:    AsString(m.Record[col]),
				Input:    cellPrefix + key,
				Original: origPrefix + key,
				Editable: col != ColEditedBy && col != ColEditedAt,
			})
		}
		g.Rows = append(g.Rows, row)
	}
	return g
}

// editsFromForm collects the grid cells whose submitted value differs from
// the value originally rendered. Untouched rows produce no entry.
func editsFromForm(form url.Values) (EditSet, error) {
	keys := make([]string, 0, len(form))
	for k := range form {
		if strings.HasPrefix(k, cellPrefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	edits := EditSet{}
	for _, k := range keys {
		rest := strings.TrimPrefix(k, cellPrefix)
		dot := strings.IndexByte(rest, '.')
		if dot <= 0 || dot == len(rest)-1 {
			return nil, fmt.Errorf("malformed grid field %q", k)
		}
		row, err := strconv.Atoi(rest[:dot])
		if err != nil || row < 0 {
			return nil, fmt.Errorf("malformed grid row in %q", k)
		}
		col := rest[dot+1:]
		if col == ColEditedBy || col == ColEditedAt {
			continue
		}

		val := form.Get(k)
		if orig, ok := form[origPrefix+rest]; ok && len(orig) > 0 && orig[0] == val {
			continue
		}
		if edits[row] == nil {
			edits[row] = map[string]Value{}
		}
		edits[row][col] = ParseValue(val)
	}
	return edits, nil
}
