package update

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/Zacy-Sokach/RoboDash/internal/utils"
)

const (
	RepoOwner = "Zacy-Sokach"
	RepoName  = "RoboDash"
	Repo      = RepoOwner + "/" + RepoName

	defaultAPIURL = "https://api.github.com"
)

type ReleaseInfo struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// Result 一次版本检查的结果
type Result struct {
	Current   string
	Latest    string
	URL       string
	HasUpdate bool
}

type Checker struct {
	client *utils.RetryableHTTPClient
	apiURL string
}

// NewChecker apiURL 为空时使用 GitHub API
func NewChecker(apiURL string) *Checker {
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	retry := utils.DefaultRetryConfig()
	retry.MaxRetries = 1
	return &Checker{
		client: utils.NewRetryableHTTPClient(&http.Client{Timeout: 10 * time.Second}, retry),
		apiURL: strings.TrimRight(apiURL, "/"),
	}
}

func (c *Checker) LatestRelease(ctx context.Context) (*ReleaseInfo, error) {
	url := fmt.Sprintf("%s/repos/%s/releases/latest", c.apiURL, Repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("获取最新版本失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API 返回状态码 %d", resp.StatusCode)
	}

	var release ReleaseInfo
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("解析版本信息失败: %w", err)
	}
	return &release, nil
}

// Check 比较当前版本和最新发布版本，开发版本（dev）总是视为最新
func (c *Checker) Check(ctx context.Context, currentVersion string) (*Result, error) {
	release, err := c.LatestRelease(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Current: currentVersion,
		Latest:  release.TagName,
		URL:     release.HTMLURL,
	}
	if currentVersion != "dev" && compareVersions(currentVersion, release.TagName) < 0 {
		res.HasUpdate = true
	}
	return res, nil
}

// DownloadURL 当前平台的二进制下载地址
func DownloadURL(version string) string {
	binaryName := fmt.Sprintf("robodash-%s-%s", runtime.GOOS, runtime.GOARCH)
	if runtime.GOOS == "windows" {
		binaryName += ".exe"
	}
	return fmt.Sprintf("https://github.com/%s/releases/download/%s/%s", Repo, version, binaryName)
}

func compareVersions(v1, v2 string) int {
	v1 = strings.TrimPrefix(v1, "v")
	v2 = strings.TrimPrefix(v2, "v")

	parts1 := strings.Split(v1, ".")
	parts2 := strings.Split(v2, ".")

	for i := 0; i < len(parts1) && i < len(parts2); i++ {
		var p1, p2 int
		fmt.Sscanf(parts1[i], "%d", &p1)
		fmt.Sscanf(parts2[i], "%d", &p2)

		if p1 < p2 {
			return -1
		}
		if p1 > p2 {
			return 1
		}
	}

	if len(parts1) < len(parts2) {
		return -1
	}
	if len(parts1) > len(parts2) {
		return 1
	}
	return 0
}
