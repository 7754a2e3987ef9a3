package simulation_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kiranshivaraju/genforge/internal/provider"
	"github.com/kiranshivaraju/genforge/internal/provider/simulation"
	"github.com/kiranshivaraju/genforge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newProvider(clock *fakeClock) *simulation.Provider {
	return simulation.New(
		simulation.WithClock(clock.Now),
		simulation.WithLatencies(map[models.Tool]time.Duration{
			models.ToolText2Image: time.Second,
			models.ToolText2Mesh:  10 * time.Second,
		}),
	)
}

func TestSubmit_ReturnsProcessingThenCompletes(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	p := newProvider(clock)
	ctx := context.Background()

	job, err := p.Submit(ctx, models.GenerationRequest{Tool: models.ToolText2Mesh, Prompt: "A giant Robot"})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, job.Status)
	assert.Nil(t, job.Result)
	assert.Equal(t, job.ID, job.Meta["remote_task_id"])

	clock.Advance(9 * time.Second)
	status, err := p.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, status.Status)

	clock.Advance(time.Second)
	status, err = p.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusCompleted, status.Status)
	require.NotNil(t, status.Result)
	assert.Equal(t, []string{"/samples/meshes/robot.glb"}, status.Result.AssetURLs)
	assert.Equal(t, "robot", status.Result.Meta["catalog"])
}

func TestLatencyIsPerTool(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	p := newProvider(clock)
	ctx := context.Background()

	img, err := p.Submit(ctx, models.GenerationRequest{Tool: models.ToolText2Image, Prompt: "tree"})
	require.NoError(t, err)
	mesh, err := p.Submit(ctx, models.GenerationRequest{Tool: models.ToolText2Mesh, Prompt: "tree"})
	require.NoError(t, err)

	clock.Advance(2 * time.Second)

	s, err := p.GetStatus(ctx, img.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, s.Status)
	assert.Equal(t, []string{"/samples/images/nature.png"}, s.Result.AssetURLs)

	s, err = p.GetStatus(ctx, mesh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, s.Status)
}

func TestCatalog_FirstMatchWinsAndDefault(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	p := simulation.New(simulation.WithClock(clock.Now),
		simulation.WithLatencies(map[models.Tool]time.Duration{models.ToolText2Image: 0}),
		simulation.WithAssetBaseURL("https://cdn.example/"))
	ctx := context.Background()

	cases := map[string]string{
		"a robot driving a car":   "https://cdn.example/images/robot.png",
		"two cars near a castle":  "https://cdn.example/images/vehicle.png",
		"abstract swirl of color": "https://cdn.example/images/default.png",
		"Cartoon":                 "https://cdn.example/images/default.png",
	}
	for prompt, want := range cases {
		job, err := p.Submit(ctx, models.GenerationRequest{Tool: models.ToolText2Image, Prompt: prompt})
		require.NoError(t, err, prompt)
		require.Equal(t, models.JobStatusCompleted, job.Status, prompt)
		assert.Equal(t, []string{want}, job.Result.AssetURLs, prompt)
	}
}

func TestAssetKindPerTool(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	p := simulation.New(simulation.WithClock(clock.Now), simulation.WithLatencies(map[models.Tool]time.Duration{
		models.ToolTexturing: 0, models.ToolImage2Video: 0,
	}))
	ctx := context.Background()

	tex, err := p.Submit(ctx, models.GenerationRequest{Tool: models.ToolTexturing, Prompt: "rusty robot", ModelURL: "/m.glb"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/samples/meshes/robot-textured.glb"}, tex.Result.AssetURLs)

	vid, err := p.Submit(ctx, models.GenerationRequest{Tool: models.ToolImage2Video, Prompt: "dragon flying", ImageURL: "/i.png"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/samples/videos/creature.mp4"}, vid.Result.AssetURLs)
}

func TestSubmit_ValidatesCapabilityInputs(t *testing.T) {
	p := simulation.New()
	_, err := p.Submit(context.Background(), models.GenerationRequest{Tool: models.ToolTexturing, Prompt: "paint it"})
	assert.ErrorIs(t, err, provider.ErrProviderFailed)

	_, err = p.Submit(context.Background(), models.GenerationRequest{Tool: "text2sound", Prompt: "beep"})
	assert.ErrorIs(t, err, provider.ErrUnsupportedTool)
}

func TestGetStatus_UnknownID(t *testing.T) {
	p := simulation.New()
	_, err := p.GetStatus(context.Background(), "sim_missing")
	assert.ErrorIs(t, err, provider.ErrJobNotFound)
}

func TestName(t *testing.T) {
	assert.Equal(t, "simulation", simulation.New().Name())
}
