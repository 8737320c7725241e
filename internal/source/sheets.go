package source

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/hpungsan/oltdash/internal/errors"
	"github.com/hpungsan/oltdash/internal/table"
)

const sheetsMimeType = "application/vnd.google-apps.spreadsheet"

// SheetsConfig identifies the spreadsheet to read and how to authorize.
type SheetsConfig struct {
	// SpreadsheetName is looked up through Drive when SpreadsheetID is empty.
	SpreadsheetName string
	SpreadsheetID   string

	// Worksheet is the tab title. Empty means the first worksheet.
	Worksheet string

	// Credentials is service-account JSON key material.
	Credentials []byte

	// RatePerMinute caps outbound fetches. 0 or less means unlimited.
	RatePerMinute int
}

// Sheets reads rows from a Google spreadsheet.
type Sheets struct {
	cfg     SheetsConfig
	sheets  *sheets.Service
	drive   *drive.Service
	limiter *rate.Limiter
}

// NewSheets authorizes with the service-account key in cfg.Credentials and
// returns a source for the configured spreadsheet. The key bytes are copied;
// cfg is not modified.
func NewSheets(ctx context.Context, cfg SheetsConfig) (*Sheets, error) {
	creds := bytes.Clone(cfg.Credentials)
	cfg.Credentials = nil

	jwtConfig, err := google.JWTConfigFromJSON(creds, sheets.SpreadsheetsReadonlyScope, drive.DriveMetadataReadonlyScope)
	if err != nil {
		return nil, errors.NewRemoteAccess(errors.ReasonAuth, err)
	}

	// The client outlives the caller's context; token refreshes must not be
	// tied to it.
	client := jwtConfig.Client(context.WithoutCancel(ctx))
	return newSheets(ctx, cfg, option.WithHTTPClient(client))
}

func newSheets(ctx context.Context, cfg SheetsConfig, opts ...option.ClientOption) (*Sheets, error) {
	sheetsService, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}
	driveService, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("drive client: %w", err)
	}

	limit := rate.Inf
	if cfg.RatePerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RatePerMinute))
	}

	return &Sheets{
		cfg:     cfg,
		sheets:  sheetsService,
		drive:   driveService,
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

// Fetch reads the worksheet. The first row is the header. Numbers keep their
// numeric type while dates and times arrive as the sheet displays them.
func (s *Sheets) Fetch(ctx context.Context) ([]table.Record, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, errors.NewRemoteAccess(errors.ReasonTransport, err)
	}

	id, err := s.spreadsheetID(ctx)
	if err != nil {
		return nil, err
	}

	title, err := s.worksheetTitle(ctx, id)
	if err != nil {
		return nil, err
	}

	resp, err := s.sheets.Spreadsheets.Values.Get(id, quoteSheetTitle(title)).
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("FORMATTED_STRING").
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify(err)
	}

	return RecordsFromValues(resp.Values), nil
}

// spreadsheetID returns the configured ID or resolves the name through Drive.
// The name is resolved on every fetch so a report regenerated under the same
// name is picked up.
func (s *Sheets) spreadsheetID(ctx context.Context) (string, error) {
	if s.cfg.SpreadsheetID != "" {
		return s.cfg.SpreadsheetID, nil
	}

	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false",
		escapeQuery(s.cfg.SpreadsheetName), sheetsMimeType)

	list, err := s.drive.Files.List().
		Q(q).
		Fields("files(id, name)").
		PageSize(10).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", classify(err)
	}

	for _, f := range list.Files {
		if f.Name == s.cfg.SpreadsheetName {
			return f.Id, nil
		}
	}
	return "", errors.NewRemoteAccess(errors.ReasonNotFound,
		fmt.Errorf("spreadsheet %q not found", s.cfg.SpreadsheetName))
}

// worksheetTitle returns the configured worksheet or the first one.
func (s *Sheets) worksheetTitle(ctx context.Context, id string) (string, error) {
	if s.cfg.Worksheet != "" {
		return s.cfg.Worksheet, nil
	}

	ss, err := s.sheets.Spreadsheets.Get(id).
		Fields("sheets.properties(title,index)").
		Context(ctx).
		Do()
	if err != nil {
		return "", classify(err)
	}

	var first *sheets.SheetProperties
	for _, sh := range ss.Sheets {
		if sh.Properties == nil {
			continue
		}
		if first == nil || sh.Properties.Index < first.Index {
			first = sh.Properties
		}
	}
	if first == nil {
		return "", errors.NewRemoteAccess(errors.ReasonNotFound,
			fmt.Errorf("spreadsheet %s has no worksheets", id))
	}
	return first.Title, nil
}

// classify maps a Google API or transport failure onto a remote access error.
func classify(err error) error {
	var gErr *googleapi.Error
	if stderrors.As(err, &gErr) {
		switch gErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return errors.NewRemoteAccess(errors.ReasonAuth, err)
		case http.StatusNotFound:
			return errors.NewRemoteAccess(errors.ReasonNotFound, err)
		}
		return errors.NewRemoteAccess(errors.ReasonTransport, err)
	}

	var tokenErr *oauth2.RetrieveError
	if stderrors.As(err, &tokenErr) {
		return errors.NewRemoteAccess(errors.ReasonAuth, err)
	}

	return errors.NewRemoteAccess(errors.ReasonTransport, err)
}

// quoteSheetTitle renders a worksheet title as an A1 range covering the whole sheet.
func quoteSheetTitle(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

// escapeQuery escapes a literal for a Drive files.list query.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "'", `\'`)
}
