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
)

// gitlabClient talks to the GitLab REST API with a project or personal
// access token. Self-hosted instances are supported through baseURL.
type gitlabClient struct {
	token      string
	projectID  string
	baseURL    string
	httpClient *http.Client
}

func newGitLabClient(token, fullName, baseURL string) (*gitlabClient, error) {
	if _, _, err := splitFullName(fullName); err != nil {
		return nil, err
	}

	apiBase := "https://gitlab.com/api/v4"
	if baseURL != "" {
		apiBase = strings.TrimSuffix(baseURL, "/") + "/api/v4"
	}

	return &gitlabClient{
		token: token,
		// The API accepts a URL-encoded "group/project" path as project id.
		projectID:  url.PathEscape(fullName),
		baseURL:    apiBase,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}, nil
}

func (c *gitlabClient) ValidateAccess(ctx context.Context) error {
	resp, err := c.doRequest(ctx, http.MethodGet, "/projects/"+c.projectID, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errorFromResponse(resp, "gitlab validate access")
	}
	return nil
}

func (c *gitlabClient) DefaultBranch(ctx context.Context) (string, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/projects/"+c.projectID, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errorFromResponse(resp, "gitlab get project")
	}

	var project struct {
		DefaultBranch string `json:"default_branch"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&project); err != nil {
		return "", fmt.Errorf("decode project: %w", err)
	}
	return project.DefaultBranch, nil
}

func (c *gitlabClient) ResolveRef(ctx context.Context, ref string) (string, error) {
	path := fmt.Sprintf("/projects/%s/repository/commits/%s", c.projectID, url.PathEscape(ref))
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errorFromResponse(resp, "gitlab resolve ref")
	}

	var commit struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&commit); err != nil {
		return "", fmt.Errorf("decode commit: %w", err)
	}
	return commit.ID, nil
}

func (c *gitlabClient) CloneCredentials(ctx context.Context) (*CloneCredentials, error) {
	return &CloneCredentials{Username: "oauth2", Password: c.token}, nil
}

func (c *gitlabClient) CreateBranch(ctx context.Context, name, fromSHA string) error {
	body := map[string]string{"branch": name, "ref": fromSHA}
	resp, err := c.doRequest(ctx, http.MethodPost, "/projects/"+c.projectID+"/repository/branches", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return errorFromResponse(resp, "gitlab create branch")
	}
	return nil
}

func (c *gitlabClient) CommitFile(ctx context.Context, input CommitFileInput) error {
	filePath := fmt.Sprintf("/projects/%s/repository/files/%s", c.projectID, url.PathEscape(input.Path))

	body := map[string]string{
		"branch":         input.Branch,
		"content":        base64.StdEncoding.EncodeToString(input.Content),
		"encoding":       "base64",
		"commit_message": input.Message,
	}

	method := http.MethodPost
	if exists, err := c.fileExists(ctx, input.Path, input.Branch); err != nil {
		return err
	} else if exists {
		method = http.MethodPut
	}

	resp, err := c.doRequest(ctx, method, filePath, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return errorFromResponse(resp, "gitlab commit file")
	}
	return nil
}

func (c *gitlabClient) fileExists(ctx context.Context, path, branch string) (bool, error) {
	reqPath := fmt.Sprintf("/projects/%s/repository/files/%s?ref=%s",
		c.projectID, url.PathEscape(path), url.QueryEscape(branch))
	resp, err := c.doRequest(ctx, http.MethodHead, reqPath, nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, errorFromResponse(resp, "gitlab head file")
	}
}

func (c *gitlabClient) OpenPullRequest(ctx context.Context, input PullRequestInput) (*PullRequest, error) {
	body := map[string]string{
		"source_branch": input.SourceBranch,
		"target_branch": input.TargetBranch,
		"title":         input.Title,
		"description":   input.Body,
	}
	resp, err := c.doRequest(ctx, http.MethodPost, "/projects/"+c.projectID+"/merge_requests", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, errorFromResponse(resp, "gitlab open merge request")
	}

	var mr struct {
		IID    int    `json:"iid"`
		WebURL string `json:"web_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return nil, fmt.Errorf("decode merge request: %w", err)
	}
	return &PullRequest{Number: mr.IID, URL: mr.WebURL}, nil
}

func (c *gitlabClient) ListChangedFiles(ctx context.Context, prNumber int) ([]string, error) {
	path := fmt.Sprintf("/projects/%s/merge_requests/%d/diffs?per_page=%d",
		c.projectID, prNumber, changedFilesPageSize)
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errorFromResponse(resp, "gitlab list changed files")
	}

	var diffs []struct {
		NewPath     string `json:"new_path"`
		DeletedFile bool   `json:"deleted_file"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&diffs); err != nil {
		return nil, fmt.Errorf("decode diffs: %w", err)
	}
	if len(diffs) == changedFilesPageSize {
		return nil, nil
	}

	paths := make([]string, 0, len(diffs))
	for _, d := range diffs {
		if d.DeletedFile {
			continue
		}
		paths = append(paths, d.NewPath)
	}
	return paths, nil
}

func (c *gitlabClient) ListRepositories(ctx context.Context) ([]RepositoryInfo, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/projects?membership=true&per_page=100", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errorFromResponse(resp, "gitlab list projects")
	}

	var projects []struct {
		ID                int64  `json:"id"`
		PathWithNamespace string `json:"path_with_namespace"`
		DefaultBranch     string `json:"default_branch"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&projects); err != nil {
		return nil, fmt.Errorf("decode projects: %w", err)
	}

	repos := make([]RepositoryInfo, 0, len(projects))
	for _, p := range projects {
		repos = append(repos, RepositoryInfo{
			PlatformRepoID: fmt.Sprintf("%d", p.ID),
			FullName:       p.PathWithNamespace,
			DefaultBranch:  p.DefaultBranch,
		})
	}
	return repos, nil
}

func (c *gitlabClient) CommentOnPullRequest(ctx context.Context, prNumber int, body string) error {
	path := fmt.Sprintf("/projects/%s/merge_requests/%d/notes", c.projectID, prNumber)
	resp, err := c.doRequest(ctx, http.MethodPost, path, map[string]string{"body": body})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return errorFromResponse(resp, "gitlab comment on merge request")
	}
	return nil
}

func (c *gitlabClient) RegisterWebhook(ctx context.Context, callbackURL, secret string) error {
	body := map[string]any{
		"url":                     callbackURL,
		"token":                   secret,
		"push_events":             true,
		"merge_requests_events":   true,
		"enable_ssl_verification": true,
	}
	resp, err := c.doRequest(ctx, http.MethodPost, "/projects/"+c.projectID+"/hooks", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return errorFromResponse(resp, "gitlab register webhook")
	}
	return nil
}

func (c *gitlabClient) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
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

	req.Header.Set("PRIVATE-TOKEN", c.token)
	req.Header.Set("User-Agent", defaultUserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError("gitlab request", err)
	}
	return resp, nil
}
