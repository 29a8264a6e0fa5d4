package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	// DriveBaseURL is the Google APIs endpoint.
	DriveBaseURL = "https://www.googleapis.com"

	driveSpace = "appDataFolder"
)

// DriveProvider opens Google Drive application-data namespaces.
type DriveProvider struct {
	baseURL string
	timeout time.Duration
}

// NewDriveProvider returns a provider talking to baseURL.
func NewDriveProvider(baseURL string, timeout time.Duration) *DriveProvider {
	return &DriveProvider{baseURL: baseURL, timeout: timeout}
}

// Open returns the application-data folder reachable with the OAuth access token.
func (p *DriveProvider) Open(_ string, token string) (Store, error) {
	if token == "" {
		return nil, fmt.Errorf("open drive: %w", ErrUnauthorized)
	}
	return NewDrive(p.baseURL, token, p.timeout), nil
}

// Drive is the Drive v3 appDataFolder of one user.
type Drive struct {
	client *resty.Client
}

// NewDrive creates a Drive client authenticated with a bearer token.
func NewDrive(baseURL, token string, timeout time.Duration) *Drive {
	c := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(token).
		SetTimeout(timeout)
	return &Drive{client: c}
}

type driveFile struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ModifiedTime string `json:"modifiedTime"`
}

type driveList struct {
	NextPageToken string      `json:"nextPageToken"`
	Files         []driveFile `json:"files"`
}

// List returns every file in the application-data folder.
func (d *Drive) List(ctx context.Context) ([]File, error) {
	var files []File
	pageToken := ""
	for {
		params := map[string]string{
			"spaces":   driveSpace,
			"fields":   "nextPageToken, files(id, name, modifiedTime)",
			"pageSize": "100",
		}
		if pageToken != "" {
			params["pageToken"] = pageToken
		}

		resp, err := d.client.R().
			SetContext(ctx).
			SetQueryParams(params).
			Get("/drive/v3/files")
		if err != nil {
			return nil, fmt.Errorf("list drive files: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("list drive files: %w", &APIError{Status: resp.StatusCode(), Body: resp.String()})
		}

		var page driveList
		if err := json.Unmarshal(resp.Body(), &page); err != nil {
			return nil, fmt.Errorf("decode drive list: %w", err)
		}
		for _, f := range page.Files {
			mt, _ := time.Parse(time.RFC3339, f.ModifiedTime)
			files = append(files, File{ID: f.ID, Name: f.Name, ModifiedTime: mt})
		}
		if page.NextPageToken == "" {
			return files, nil
		}
		pageToken = page.NextPageToken
	}
}

// Read downloads the content of a file.
func (d *Drive) Read(ctx context.Context, id string) ([]byte, error) {
	resp, err := d.client.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetQueryParam("alt", "media").
		Get("/drive/v3/files/{id}")
	if err != nil {
		return nil, fmt.Errorf("read drive file: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("read drive file %s: %w", id, &APIError{Status: resp.StatusCode(), Body: resp.String()})
	}
	return resp.Body(), nil
}

// Write uploads content with a multipart request, creating the file in the
// application-data folder or replacing an existing one.
func (d *Drive) Write(ctx context.Context, name string, content []byte, existingID string) (string, error) {
	meta := map[string]any{
		"name":     name,
		"mimeType": "application/json",
	}
	if existingID == "" {
		meta["parents"] = []string{driveSpace}
	}
	body, contentType, err := multipartRelated(meta, content)
	if err != nil {
		return "", err
	}

	req := d.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetQueryParam("uploadType", "multipart").
		SetBody(body)

	var resp *resty.Response
	if existingID == "" {
		resp, err = req.Post("/upload/drive/v3/files")
	} else {
		resp, err = req.SetPathParam("id", existingID).Patch("/upload/drive/v3/files/{id}")
	}
	if err != nil {
		return "", fmt.Errorf("upload drive file: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("upload drive file: %w", &APIError{Status: resp.StatusCode(), Body: resp.String()})
	}

	var created driveFile
	if err := json.Unmarshal(resp.Body(), &created); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if created.ID == "" {
		created.ID = existingID
	}
	return created.ID, nil
}

func multipartRelated(meta map[string]any, content []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, "", fmt.Errorf("encode metadata: %w", err)
	}
	parts := []struct {
		contentType string
		data        []byte
	}{
		{"application/json; charset=UTF-8", metaJSON},
		{"application/json", content},
	}
	for _, p := range parts {
		h := textproto.MIMEHeader{}
		h.Set("Content-Type", p.contentType)
		pw, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create part: %w", err)
		}
		if _, err := pw.Write(p.data); err != nil {
			return nil, "", fmt.Errorf("write part: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return buf.Bytes(), "multipart/related; boundary=" + w.Boundary(), nil
}
