package scm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// bitbucketClient talks to the Bitbucket Cloud 2.0 API with an app
// password. The stored credential is "username:app_password".
type bitbucketClient struct {
	username   string
	password   string
	fullName   string
	baseURL    string
	httpClient *http.Client
}

func newBitbucketClient(credential, fullName, baseURL string) (*bitbucketClient, error) {
	if _, _, err := splitFullName(fullName); err != nil {
		return nil, err
	}

	username, password, ok := strings.Cut(credential, ":")
	if !ok || username == "" || password == "" {
		return nil, fmt.Errorf("bitbucket credential must be username:app_password")
	}

	apiBase := "https://api.bitbucket.org/2.0"
	if baseURL != "" {
		apiBase = strings.TrimSuffix(baseURL, "/") + "/2.0"
	}

	return &bitbucketClient{
		username:   username,
		password:   password,
		fullName:   fullName,
		baseURL:    apiBase,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}, nil
}

func (c *bitbucketClient) ValidateAccess(ctx context.Context) error {
	resp, err := c.doJSON(ctx, http.MethodGet, "/repositories/"+c.fullName, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errorFromResponse(resp, "bitbucket validate access")
	}
	return nil
}

func (c *bitbucketClient) DefaultBranch(ctx context.Context) (string, error) {
	resp, err := c.doJSON(ctx, http.MethodGet, "/repositories/"+c.fullName, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errorFromResponse(resp, "bitbucket get repository")
	}

	var repoData struct {
		MainBranch struct {
			Name string `json:"name"`
		} `json:"mainbranch"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&repoData); err != nil {
		return "", fmt.Errorf("decode repository: %w", err)
	}
	return repoData.MainBranch.Name, nil
}

func (c *bitbucketClient) ResolveRef(ctx context.Context, ref string) (string, error) {
	path := fmt.Sprintf("/repositories/%s/commit/%s", c.fullName, url.PathEscape(ref))
	resp, err := c.doJSON(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errorFromResponse(resp, "bitbucket resolve ref")
	}

	var commit struct {
		Hash string `json:"hash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&commit); err != nil {
		return "", fmt.Errorf("decode commit: %w", err)
	}
	return commit.Hash, nil
}

func (c *bitbucketClient) CloneCredentials(ctx context.Context) (*CloneCredentials, error) {
	return &CloneCredentials{Username: c.username, Password: c.password}, nil
}

func (c *bitbucketClient) CreateBranch(ctx context.Context, name, fromSHA string) error {
	body := map[string]any{
		"name":   name,
		"target": map[string]string{"hash": fromSHA},
	}
	resp, err := c.doJSON(ctx, http.MethodPost, "/repositories/"+c.fullName+"/refs/branches", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return errorFromResponse(resp, "bitbucket create branch")
	}
	return nil
}

// CommitFile uses the src endpoint, which takes the file as a form field
// keyed by its repository path.
func (c *bitbucketClient) CommitFile(ctx context.Context, input CommitFileInput) error {
	form := url.Values{}
	form.Set(input.Path, string(input.Content))
	form.Set("branch", input.Branch)
	form.Set("message", input.Message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/repositories/"+c.fullName+"/src",
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError("bitbucket commit file", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return errorFromResponse(resp, "bitbucket commit file")
	}
	return nil
}

func (c *bitbucketClient) OpenPullRequest(ctx context.Context, input PullRequestInput) (*PullRequest, error) {
	body := map[string]any{
		"title":       input.Title,
		"description": input.Body,
		"source": map[string]any{
			"branch": map[string]string{"name": input.SourceBranch},
		},
		"destination": map[string]any{
			"branch": map[string]string{"name": input.TargetBranch},
		},
	}
	resp, err := c.doJSON(ctx, http.MethodPost, "/repositories/"+c.fullName+"/pullrequests", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, errorFromResponse(resp, "bitbucket open pull request")
	}

	var pr struct {
		ID    int `json:"id"`
		Links struct {
			HTML struct {
				Href string `json:"href"`
			} `json:"html"`
		} `json:"links"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("decode pull request: %w", err)
	}
	return &PullRequest{Number: pr.ID, URL: pr.Links.HTML.Href}, nil
}

func (c *bitbucketClient) ListChangedFiles(ctx context.Context, prNumber int) ([]string, error) {
	path := fmt.Sprintf("/repositories/%s/pullrequests/%d/diffstat?pagelen=%d",
		c.fullName, prNumber, changedFilesPageSize)
	resp, err := c.doJSON(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errorFromResponse(resp, "bitbucket list changed files")
	}

	var page struct {
		Values []struct {
			Status string `json:"status"`
			New    struct {
				Path string `json:"path"`
			} `json:"new"`
		} `json:"values"`
		Next string `json:"next"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode diffstat: %w", err)
	}
	if page.Next != "" {
		return nil, nil
	}

	paths := make([]string, 0, len(page.Values))
	for _, v := range page.Values {
		if v.Status == "removed" || v.New.Path == "" {
			continue
		}
		paths = append(paths, v.New.Path)
	}
	return paths, nil
}

func (c *bitbucketClient) ListRepositories(ctx context.Context) ([]RepositoryInfo, error) {
	workspace, _, err := splitFullName(c.fullName)
	if err != nil {
		return nil, err
	}
	resp, err := c.doJSON(ctx, http.MethodGet, "/repositories/"+url.PathEscape(workspace)+"?pagelen=100", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errorFromResponse(resp, "bitbucket list repositories")
	}

	var page struct {
		Values []struct {
			UUID       string `json:"uuid"`
			FullName   string `json:"full_name"`
			MainBranch struct {
				Name string `json:"name"`
			} `json:"mainbranch"`
		} `json:"values"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode repositories: %w", err)
	}

	repos := make([]RepositoryInfo, 0, len(page.Values))
	for _, v := range page.Values {
		repos = append(repos, RepositoryInfo{
			PlatformRepoID: v.UUID,
			FullName:       v.FullName,
			DefaultBranch:  v.MainBranch.Name,
		})
	}
	return repos, nil
}

func (c *bitbucketClient) CommentOnPullRequest(ctx context.Context, prNumber int, body string) error {
	path := fmt.Sprintf("/repositories/%s/pullrequests/%d/comments", c.fullName, prNumber)
	payload := map[string]any{
		"content": map[string]string{"raw": body},
	}
	resp, err := c.doJSON(ctx, http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return errorFromResponse(resp, "bitbucket comment on pull request")
	}
	return nil
}

func (c *bitbucketClient) RegisterWebhook(ctx context.Context, callbackURL, secret string) error {
	body := map[string]any{
		"description": "vexguard scan trigger",
		"url":         callbackURL,
		"active":      true,
		"secret":      secret,
		"events": []string{
			"repo:push",
			"pullrequest:created",
			"pullrequest:updated",
		},
	}
	resp, err := c.doJSON(ctx, http.MethodPost, "/repositories/"+c.fullName+"/hooks", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return errorFromResponse(resp, "bitbucket register webhook")
	}
	return nil
}

func (c *bitbucketClient) doJSON(ctx context.Context, method, path string, body any) (*http.Response, error) {
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

	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("User-Agent", defaultUserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError("bitbucket request", err)
	}
	return resp, nil
}
