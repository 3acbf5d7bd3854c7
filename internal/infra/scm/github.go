package scm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bradleyfalzon/ghinstallation/v2"
)

// githubClient talks to the GitHub REST API as a GitHub App
// installation. The ghinstallation transport mints and refreshes
// installation tokens transparently.
type githubClient struct {
	fullName   string
	baseURL    string
	transport  *ghinstallation.Transport
	httpClient *http.Client
}

func newGitHubClient(appID, installationID int64, privateKey []byte, fullName, baseURL string) (*githubClient, error) {
	if _, _, err := splitFullName(fullName); err != nil {
		return nil, err
	}

	apiBase := "https://api.github.com"
	if baseURL != "" && baseURL != "https://github.com" {
		// GitHub Enterprise serves the REST API under /api/v3.
		apiBase = strings.TrimSuffix(baseURL, "/") + "/api/v3"
	}

	itr, err := ghinstallation.New(http.DefaultTransport, appID, installationID, privateKey)
	if err != nil {
		return nil, fmt.Errorf("github app transport: %w", err)
	}
	itr.BaseURL = apiBase

	return &githubClient{
		fullName:  fullName,
		baseURL:   apiBase,
		transport: itr,
		httpClient: &http.Client{
			Transport: itr,
			Timeout:   defaultTimeout,
		},
	}, nil
}

func (c *githubClient) ValidateAccess(ctx context.Context) error {
	resp, err := c.doRequest(ctx, http.MethodGet, "/repos/"+c.fullName, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errorFromResponse(resp, "github validate access")
	}
	return nil
}

func (c *githubClient) DefaultBranch(ctx context.Context) (string, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/repos/"+c.fullName, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errorFromResponse(resp, "github get repository")
	}

	var repoData struct {
		DefaultBranch string `json:"default_branch"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&repoData); err != nil {
		return "", fmt.Errorf("decode repository: %w", err)
	}
	return repoData.DefaultBranch, nil
}

func (c *githubClient) ResolveRef(ctx context.Context, ref string) (string, error) {
	path := fmt.Sprintf("/repos/%s/commits/%s", c.fullName, url.PathEscape(ref))
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}
	// This media type makes the endpoint return the bare SHA.
	req.Header.Set("Accept", "application/vnd.github.sha")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", transportError("github resolve ref", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errorFromResponse(resp, "github resolve ref")
	}

	sha, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return "", fmt.Errorf("read sha: %w", err)
	}
	return strings.TrimSpace(string(sha)), nil
}

func (c *githubClient) CloneCredentials(ctx context.Context) (*CloneCredentials, error) {
	token, err := c.transport.Token(ctx)
	if err != nil {
		return nil, wrapError(KindAuthFailed, "github installation token", err)
	}
	return &CloneCredentials{Username: "x-access-token", Password: token}, nil
}

func (c *githubClient) CreateBranch(ctx context.Context, name, fromSHA string) error {
	body := map[string]string{
		"ref": "refs/heads/" + name,
		"sha": fromSHA,
	}
	resp, err := c.doRequest(ctx, http.MethodPost, "/repos/"+c.fullName+"/git/refs", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return errorFromResponse(resp, "github create branch")
	}
	return nil
}

func (c *githubClient) CommitFile(ctx context.Context, input CommitFileInput) error {
	contentPath := fmt.Sprintf("/repos/%s/contents/%s", c.fullName, escapePath(input.Path))

	body := map[string]string{
		"message": input.Message,
		"content": base64.StdEncoding.EncodeToString(input.Content),
		"branch":  input.Branch,
	}

	// Updating an existing file requires its current blob SHA.
	if sha, err := c.fileBlobSHA(ctx, input.Path, input.Branch); err == nil && sha != "" {
		body["sha"] = sha
	} else if err != nil && !IsNotFound(err) {
		return err
	}

	resp, err := c.doRequest(ctx, http.MethodPut, contentPath, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return errorFromResponse(resp, "github commit file")
	}
	return nil
}

func (c *githubClient) fileBlobSHA(ctx context.Context, path, branch string) (string, error) {
	reqPath := fmt.Sprintf("/repos/%s/contents/%s?ref=%s",
		c.fullName, escapePath(path), url.QueryEscape(branch))
	resp, err := c.doRequest(ctx, http.MethodGet, reqPath, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", newError(KindNotFound, "github file not found")
	}
	if resp.StatusCode != http.StatusOK {
		return "", errorFromResponse(resp, "github get file")
	}

	var content struct {
		SHA string `json:"sha"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&content); err != nil {
		return "", fmt.Errorf("decode file content: %w", err)
	}
	return content.SHA, nil
}

func (c *githubClient) OpenPullRequest(ctx context.Context, input PullRequestInput) (*PullRequest, error) {
	body := map[string]string{
		"title": input.Title,
		"body":  input.Body,
		"head":  input.SourceBranch,
		"base":  input.TargetBranch,
	}
	resp, err := c.doRequest(ctx, http.MethodPost, "/repos/"+c.fullName+"/pulls", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, errorFromResponse(resp, "github open pull request")
	}

	var pr struct {
		Number  int    `json:"number"`
		HTMLURL string `json:"html_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("decode pull request: %w", err)
	}
	return &PullRequest{Number: pr.Number, URL: pr.HTMLURL}, nil
}

func (c *githubClient) ListChangedFiles(ctx context.Context, prNumber int) ([]string, error) {
	path := fmt.Sprintf("/repos/%s/pulls/%d/files?per_page=%d", c.fullName, prNumber, changedFilesPageSize)
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errorFromResponse(resp, "github list changed files")
	}

	var files []struct {
		Filename string `json:"filename"`
		Status   string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&files); err != nil {
		return nil, fmt.Errorf("decode changed files: %w", err)
	}
	if len(files) == changedFilesPageSize {
		// More pages may exist; an incomplete list would silently skip
		// files, so the caller scans unscoped instead.
		return nil, nil
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		if f.Status == "removed" {
			continue
		}
		paths = append(paths, f.Filename)
	}
	return paths, nil
}

func (c *githubClient) ListRepositories(ctx context.Context) ([]RepositoryInfo, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/installation/repositories?per_page=100", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errorFromResponse(resp, "github list repositories")
	}

	var listing struct {
		Repositories []struct {
			ID            int64  `json:"id"`
			FullName      string `json:"full_name"`
			DefaultBranch string `json:"default_branch"`
		} `json:"repositories"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode repositories: %w", err)
	}

	repos := make([]RepositoryInfo, 0, len(listing.Repositories))
	for _, r := range listing.Repositories {
		repos = append(repos, RepositoryInfo{
			PlatformRepoID: fmt.Sprintf("%d", r.ID),
			FullName:       r.FullName,
			DefaultBranch:  r.DefaultBranch,
		})
	}
	return repos, nil
}

func (c *githubClient) CommentOnPullRequest(ctx context.Context, prNumber int, body string) error {
	path := fmt.Sprintf("/repos/%s/issues/%d/comments", c.fullName, prNumber)
	resp, err := c.doRequest(ctx, http.MethodPost, path, map[string]string{"body": body})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return errorFromResponse(resp, "github comment on pull request")
	}
	return nil
}

// RegisterWebhook is a no-op for GitHub: the App subscription delivers
// push, pull_request and installation events for every repository the
// installation covers.
func (c *githubClient) RegisterWebhook(ctx context.Context, callbackURL, secret string) error {
	return nil
}

func (c *githubClient) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError("github request", err)
	}
	return resp, nil
}

func (c *githubClient) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", defaultUserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// escapePath escapes each segment of a repository-relative file path.
func escapePath(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
