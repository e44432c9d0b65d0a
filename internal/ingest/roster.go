package ingest

import (
	"context"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/sells-group/permitcheck/internal/fetcher"
	"github.com/sells-group/permitcheck/internal/model"
	"github.com/sells-group/permitcheck/internal/normalize"
	"github.com/sells-group/permitcheck/internal/reconcile"
	"github.com/sells-group/permitcheck/internal/store"
)

// Form fields of the roster's ASP.NET page.
const (
	fieldViewState          = "__VIEWSTATE"
	fieldViewStateGenerator = "__VIEWSTATEGENERATOR"
	fieldEventValidation    = "__EVENTVALIDATION"
	fieldEventTarget        = "__EVENTTARGET"
	fieldEventArgument      = "__EVENTARGUMENT"

	rosterSearchTarget = "ctl00$pagecontentplaceholder$btnSubmit"
	rosterGridTarget   = "ctl00$pagecontentplaceholder$gvLicenseeList"
	rosterStateField   = "ctl00$pagecontentplaceholder$txtSearchState"

	rosterCells = 6
)

var hiddenFields = []string{fieldViewState, fieldEventValidation, fieldViewStateGenerator}

// RosterPage is one parsed page of the licensee list.
type RosterPage struct {
	Rows   [][]string
	Hidden map[string]string
}

// ParseRosterTable extracts the licensee rows and the postback state from
// a roster page. Only rows with exactly six cells are kept; <br> inside a
// cell becomes ", ".
func ParseRosterTable(r io.Reader) (*RosterPage, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, eris.Wrap(err, "roster: parse html")
	}

	page := &RosterPage{Hidden: make(map[string]string)}
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Input:
				name := attr(n, "name")
				for _, f := range hiddenFields {
					if name == f {
						page.Hidden[f] = attr(n, "value")
					}
				}
			case atom.Tr:
				if row := rowCells(n); len(row) == rosterCells {
					page.Rows = append(page.Rows, row)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return page, nil
}

// rowCells returns the text of tr's direct td children.
func rowCells(tr *html.Node) []string {
	var cells []string
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Td {
			var b strings.Builder
			cellText(c, &b)
			cells = append(cells, strings.TrimSpace(b.String()))
		}
	}
	return cells
}

func cellText(n *html.Node, b *strings.Builder) {
	switch {
	case n.Type == html.TextNode:
		b.WriteString(n.Data)
	case n.Type == html.ElementNode && n.DataAtom == atom.Br:
		b.WriteString(", ")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		cellText(c, b)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// ParseRosterRow maps the six roster cells (company, "last, first" name,
// registration number, address, expiration date, status) onto a
// contractor input. The address is "street, [unit,] city, state zip"; a
// unit segment is dropped and an unparseable address is left off.
func ParseRosterRow(cells []string) (reconcile.ContractorInput, error) {
	if len(cells) != rosterCells {
		return reconcile.ContractorInput{}, eris.Errorf("roster: want %d cells, got %d", rosterCells, len(cells))
	}

	in := reconcile.ContractorInput{
		Company:   cells[0],
		Name:      normalize.ReverseName(cells[1]),
		LicenseID: cells[2],
		Status:    cells[5],
		Address:   parseRosterAddress(cells[3]),
	}
	exp, err := normalize.ParseDate(cells[4])
	if err != nil {
		zap.L().Debug("roster: dropping unparseable expiration",
			zap.String("license_id", cells[2]),
			zap.String("date", cells[4]),
		)
	}
	in.ExpireDate = exp
	return in, nil
}

func parseRosterAddress(raw string) *reconcile.AddressInput {
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < 3 {
		return nil
	}

	number, name := normalize.SplitStreet(parts[0])
	stateZip := strings.Fields(parts[len(parts)-1])
	addr := &reconcile.AddressInput{
		StreetNumber: deref(number),
		StreetName:   deref(name),
		City:         parts[len(parts)-2],
	}
	if len(stateZip) > 0 {
		addr.State = stateZip[0]
	}
	if len(stateZip) > 1 {
		addr.Zipcode = stateZip[1]
	}
	return addr
}

// RosterClient pages through the state licensee list by ASP.NET postback.
type RosterClient struct {
	fetcher  fetcher.Fetcher
	url      string
	state    string
	maxPages int
}

// NewRosterClient returns a client for the licensee list at rawURL,
// filtered to state. maxPages <= 0 reads until the list ends.
func NewRosterClient(f fetcher.Fetcher, rawURL, state string, maxPages int) *RosterClient {
	return &RosterClient{fetcher: f, url: rawURL, state: state, maxPages: maxPages}
}

// Pages calls fn with the rows of each page in order. Paging stops when a
// response lacks view state, a page has no rows, maxPages is reached or fn
// returns an error.
func (c *RosterClient) Pages(ctx context.Context, fn func(page int, rows [][]string) error) error {
	first, err := load(func() (io.ReadCloser, error) { return c.fetcher.Download(ctx, c.url) })
	if err != nil {
		return eris.Wrap(err, "roster: load search form")
	}
	hidden := first.Hidden

	for page := 1; c.maxPages <= 0 || page <= c.maxPages; page++ {
		form := url.Values{}
		for _, f := range hiddenFields {
			form.Set(f, hidden[f])
		}
		form.Set(rosterStateField, c.state)
		if page == 1 {
			form.Set(fieldEventTarget, rosterSearchTarget)
			form.Set(fieldEventArgument, "")
		} else {
			form.Set(fieldEventTarget, rosterGridTarget)
			form.Set(fieldEventArgument, "Page$"+strconv.Itoa(page))
		}

		p, err := load(func() (io.ReadCloser, error) { return c.fetcher.PostForm(ctx, c.url, form) })
		if err != nil {
			return eris.Wrapf(err, "roster: page %d", page)
		}
		if p.Hidden[fieldViewState] == "" || len(p.Rows) == 0 {
			return nil
		}
		if err := fn(page, p.Rows); err != nil {
			return err
		}
		hidden = p.Hidden
	}
	return nil
}

func load(open func() (io.ReadCloser, error)) (*RosterPage, error) {
	body, err := open()
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck
	return ParseRosterTable(body)
}

// ContractorsSource imports the state home-improvement contractor roster.
type ContractorsSource struct {
	Client *RosterClient
}

// Name implements Source.
func (s *ContractorsSource) Name() string { return SourceContractors }

// StateField implements Source.
func (s *ContractorsSource) StateField() model.StateField { return model.StateContractors }

// Run implements Source. Pages are reconciled as they arrive.
func (s *ContractorsSource) Run(ctx context.Context, deps Deps) (*Result, error) {
	if s.Client == nil || s.Client.url == "" {
		return &Result{NotRun: true}, nil
	}

	total := &Result{}
	line := 0
	err := s.Client.Pages(ctx, func(page int, rows [][]string) error {
		jobs := make(chan job[[]string], len(rows))
		for _, r := range rows {
			line++
			jobs <- job[[]string]{line: line, row: r}
		}
		close(jobs)

		res, err := processRows(ctx, deps, SourceContractors, jobs, reconcileRosterRow)
		if res != nil {
			total.add(res)
		}
		if deps.Log != nil {
			deps.Log.Debug("roster page reconciled", zap.Int("page", page), zap.Int("rows", len(rows)))
		}
		return err
	})
	if err != nil {
		return total, err
	}
	return total, nil
}

func reconcileRosterRow(ctx context.Context, tx store.Tx, cells []string) (outcome, error) {
	in, err := ParseRosterRow(cells)
	if err != nil {
		return outcomeSkipped, skipRow(err.Error())
	}
	r, err := reconcile.ReconcileContractor(ctx, tx, in)
	if err != nil {
		return 0, err
	}
	if r == nil {
		return outcomeSkipped, skipRow("roster row has no license id or name")
	}
	return outcomeOf(r.Created), nil
}

func (r *Result) add(o *Result) {
	r.Processed += o.Processed
	r.Created += o.Created
	r.Updated += o.Updated
	r.Skipped += o.Skipped
	r.Failed += o.Failed
}
