package scenario

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Zacy-Sokach/RoboDash/internal/robot"
	"gopkg.in/yaml.v3"
)

// ErrInvalidScenario 剧本内容不合法
var ErrInvalidScenario = errors.New("无效的剧本")

// Step 剧本中的一步：等待 After 后推送 State
type Step struct {
	After time.Duration  `yaml:"after"`
	State robot.AppState `yaml:"state"`
	Note  string         `yaml:"note,omitempty"`
	// Expect 可选，期望引擎最终落在的状态
	Expect robot.State `yaml:"expect,omitempty"`
}

// Scenario 一组按时间排列的 AppState 快照
type Scenario struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Load 从 YAML 文件读取剧本
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取剧本文件失败: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse 解析并校验 YAML 剧本
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: 解析失败: %v", ErrInvalidScenario, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate 至少一步，延迟不能为负，Expect 必须是合法状态
func (s *Scenario) Validate() error {
	if len(s.Steps) == 0 {
		return fmt.Errorf("%w: 没有任何步骤", ErrInvalidScenario)
	}
	for i, step := range s.Steps {
		if step.After < 0 {
			return fmt.Errorf("%w: 第 %d 步的延迟为负数 (%s)", ErrInvalidScenario, i+1, step.After)
		}
		if step.Expect != "" && !step.Expect.Valid() {
			return fmt.Errorf("%w: 第 %d 步: %w", ErrInvalidScenario, i+1, robot.ErrUnknownState)
		}
	}
	return nil
}

// Duration 全部步骤的总时长
func (s *Scenario) Duration() time.Duration {
	var total time.Duration
	for _, step := range s.Steps {
		total += step.After
	}
	return total
}

// Marshal 序列化为 YAML
func (s *Scenario) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("序列化剧本失败: %w", err)
	}
	return data, nil
}

// Sink 接收快照，*robot.Engine 实现了该接口
type Sink interface {
	Update(robot.AppState)
}

// Player 按剧本时间表推送快照
type Player struct {
	scenario *Scenario
	speed    float64
	onStep   func(index int, step Step)
}

// PlayerOption 播放配置项
type PlayerOption func(*Player)

// WithSpeed 播放倍速，大于 1 加快，非正数忽略
func WithSpeed(speed float64) PlayerOption {
	return func(p *Player) {
		if speed > 0 {
			p.speed = speed
		}
	}
}

// WithStepHook 每推送一步后回调
func WithStepHook(fn func(index int, step Step)) PlayerOption {
	return func(p *Player) {
		p.onStep = fn
	}
}

// NewPlayer 创建播放器
func NewPlayer(s *Scenario, opts ...PlayerOption) *Player {
	p := &Player{scenario: s, speed: 1}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Play 依次等待并推送每一步，ctx 取消时立即返回
func (p *Player) Play(ctx context.Context, sink Sink) error {
	if err := p.scenario.Validate(); err != nil {
		return err
	}

	for i, step := range p.scenario.Steps {
		wait := time.Duration(float64(step.After) / p.speed)
		if wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		sink.Update(step.State)
		if p.onStep != nil {
			p.onStep(i, step)
		}
	}
	return nil
}
