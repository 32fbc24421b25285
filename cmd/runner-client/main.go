package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/wfunc/runner-game/internal/service"
	"github.com/wfunc/runner-game/internal/utils"
)

// APITestClient 冒烟测试客户端，按真实节奏完成一局并领奖
type APITestClient struct {
	BaseURL    string
	HTTPClient *http.Client
	Token      string
	RunID      string
}

type envelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Code    int             `json:"code"`
	Details string          `json:"details"`
}

// NewAPITestClient 创建测试客户端
func NewAPITestClient(baseURL, token string) *APITestClient {
	return &APITestClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		Token: token,
	}
}

func (c *APITestClient) do(method, path string, body, out interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("JSON编码失败: %w", err)
		}
	}

	req, err := http.NewRequest(method, c.BaseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应失败: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d code=%d %s %s", resp.StatusCode, env.Code, env.Message, env.Details)
	}
	if out != nil {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

// TestHealthCheck 健康检查
func (c *APITestClient) TestHealthCheck() error {
	resp, err := c.HTTPClient.Get(c.BaseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

// TestStartRun 开局
func (c *APITestClient) TestStartRun() error {
	var res service.StartRunResult
	err := c.do(http.MethodPost, "/api/v1/game/run/start", map[string]interface{}{
		"clientNonce": "smoke-client",
		"clientData":  map[string]string{"userAgent": "runner-client"},
	}, &res)
	if err != nil {
		return err
	}
	c.RunID = res.RunID
	fmt.Printf("   runId: %s\n", res.RunID)
	return nil
}

// TestFinishRun 按实际耗时上报成绩
func (c *APITestClient) TestFinishRun(play time.Duration, score, distance int64) error {
	time.Sleep(play)

	var res service.FinishRunResult
	err := c.do(http.MethodPost, "/api/v1/game/run/finish", map[string]interface{}{
		"runId":       c.RunID,
		"duration":    play.Milliseconds(),
		"score":       score,
		"distance":    distance,
		"clientNonce": "smoke-client",
	}, &res)
	if err != nil {
		return err
	}
	fmt.Printf("   status: %s eligible: %v reward: %d %v\n", res.Status, res.IsEligibleForReward, res.RewardAmount, res.Violations)
	return nil
}

// TestClaimReward 领奖
func (c *APITestClient) TestClaimReward() error {
	var res service.ClaimRewardResult
	if err := c.do(http.MethodPost, "/api/v1/game/reward/claim", map[string]string{"runId": c.RunID}, &res); err != nil {
		return err
	}
	fmt.Printf("   rewardId: %s amount: %d\n", res.RewardID, res.Amount)
	return nil
}

// TestLeaderboard 排行榜
func (c *APITestClient) TestLeaderboard() error {
	var res service.LeaderboardResult
	if err := c.do(http.MethodGet, "/api/v1/game/leaderboard?timeframe=daily", nil, &res); err != nil {
		return err
	}
	for i, e := range res.Leaderboard {
		fmt.Printf("   #%d %s best=%d runs=%d\n", i+1, e.UserID, e.BestScore, e.TotalRuns)
	}
	return nil
}

// TestPlayerStats 玩家统计
func (c *APITestClient) TestPlayerStats() error {
	var res service.PlayerStatsResult
	if err := c.do(http.MethodGet, "/api/v1/game/me", nil, &res); err != nil {
		return err
	}
	fmt.Printf("   runs=%d best=%d rewards=%d rank=%d\n", res.TotalRuns, res.BestScore, res.TotalRewards, res.CurrentRank)
	return nil
}

// RunAllTests 依次执行
func (c *APITestClient) RunAllTests(play time.Duration, score, distance int64) int {
	tests := []struct {
		name string
		fn   func() error
	}{
		{"health", c.TestHealthCheck},
		{"start run", c.TestStartRun},
		{"finish run", func() error { return c.TestFinishRun(play, score, distance) }},
		{"claim reward", c.TestClaimReward},
		{"leaderboard", c.TestLeaderboard},
		{"player stats", c.TestPlayerStats},
	}

	failed := 0
	for _, test := range tests {
		fmt.Printf("-> %s\n", test.name)
		if err := test.fn(); err != nil {
			fmt.Printf("   FAIL: %v\n", err)
			failed++
			continue
		}
		fmt.Println("   ok")
	}
	fmt.Println(strings.Repeat("=", 40))
	fmt.Printf("%d/%d passed\n", len(tests)-failed, len(tests))
	return failed
}

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:8080", "服务地址")
		secret   = flag.String("secret", "change-me-in-production", "JWT 密钥，需与服务端一致")
		userID   = flag.String("user", "smoke-user", "用户ID")
		play     = flag.Duration("play", 3*time.Second, "模拟对局时长")
		score    = flag.Int64("score", 1200, "上报分数")
		distance = flag.Int64("distance", 150, "上报距离")
	)
	flag.Parse()

	token, err := utils.NewJWTManager(*secret, time.Hour).GenerateAccessToken(*userID, *userID)
	if err != nil {
		fmt.Printf("生成令牌失败: %v\n", err)
		os.Exit(1)
	}

	client := NewAPITestClient(*baseURL, token)
	if failed := client.RunAllTests(*play, *score, *distance); failed > 0 {
		os.Exit(1)
	}
}
