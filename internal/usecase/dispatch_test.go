package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/textgen-horde/internal/domain"
	"github.com/fairyhunter13/textgen-horde/internal/usecase"
)

func TestCoordinator_DispatchAndDeliver(t *testing.T) {
	t.Parallel()
	c, clk, _ := newTestEngine(t)
	ctx := context.Background()

	requester, err := c.RegisterUser("requester", "")
	require.NoError(t, err)
	runner, err := c.RegisterUser("runner", "")
	require.NoError(t, err)

	wp, err := c.SubmitPrompt(requester, domain.PromptRequest{
		Prompt: "Tell me a story",
		Params: map[string]any{"n": float64(2), "temperature": 0.8},
	})
	require.NoError(t, err)

	first, err := c.PopGeneration(ctx, runner, checkIn("runner-rig"))
	require.NoError(t, err)
	require.NotNil(t, first.Envelope)
	assert.Equal(t, "Tell me a story", first.Envelope.Payload["prompt"])
	assert.Equal(t, 1, first.Envelope.Payload["n"], "workers always get single-generation payloads")
	assert.Equal(t, 0.8, first.Envelope.Payload["temperature"])
	assert.Empty(t, first.Envelope.Softprompt)

	second, err := c.PopGeneration(ctx, runner, checkIn("runner-rig"))
	require.NoError(t, err)
	require.NotNil(t, second.Envelope)
	assert.NotEqual(t, first.Envelope.ID, second.Envelope.ID)

	// Both generations are out; the queue has nothing left for this worker.
	third, err := c.PopGeneration(ctx, runner, checkIn("runner-rig"))
	require.NoError(t, err)
	assert.Nil(t, third.Envelope)
	assert.Empty(t, third.Skipped)

	clk.Step(4 * time.Second)
	rec, err := c.DeliverGeneration(ctx, first.Envelope.ID, "Once upon a time")
	require.NoError(t, err)
	// 80 tokens at multiplier 2.7: 80*2.7/21 rounded to two decimals.
	assert.InDelta(t, 10.29, rec.Kudos, 1e-9)
	assert.Equal(t, "EleutherAI/gpt-neo-2.7B", rec.Model)
	assert.Equal(t, float64(20), rec.TokensPerSec)
	rec, err = c.DeliverGeneration(ctx, second.Envelope.ID, "The end")
	require.NoError(t, err)
	assert.InDelta(t, 10.29, rec.Kudos, 1e-9)

	st, err := c.PromptStatus(wp.ID, false)
	require.NoError(t, err)
	assert.True(t, st.Done)
	assert.Equal(t, 2, st.Finished)
	assert.Equal(t, 0, st.Processing)
	assert.Equal(t, 0, st.Waiting)
	assert.Equal(t, 0, st.QueuePosition)
	require.Len(t, st.Generations, 2)
	assert.Equal(t, "Once upon a time", st.Generations[0].Text)
	assert.Equal(t, "runner-rig", st.Generations[0].ServerName)
	assert.NotEmpty(t, st.Generations[0].ServerID)

	// Requester paid for both generations, the runner earned them.
	assert.Equal(t, int64(160), requester.Usage.Tokens)
	assert.Equal(t, int64(2), requester.Usage.Requests)
	assert.InDelta(t, -20.58, requester.Kudos, 1e-9)
	assert.Equal(t, int64(160), runner.Contributions.Tokens)
	assert.Equal(t, int64(2), runner.Contributions.Fulfillments)
	assert.InDelta(t, 20.58, runner.Kudos, 1e-9)

	worker, ok := c.WorkerByName("runner-rig")
	require.True(t, ok)
	assert.Equal(t, int64(160), worker.Contributions)
	assert.Equal(t, int64(2), worker.Fulfilments)
	// 80 tokens over 4 seconds.
	assert.Equal(t, []float64{20, 20}, worker.Performances)
}

func TestCoordinator_Deliver_Idempotent(t *testing.T) {
	t.Parallel()
	c, clk, _ := newTestEngine(t)
	ctx := context.Background()

	requester, err := c.RegisterUser("requester", "")
	require.NoError(t, err)
	runner, err := c.RegisterUser("runner", "")
	require.NoError(t, err)
	wp, err := c.SubmitPrompt(requester, domain.PromptRequest{Prompt: "hello", Params: map[string]any{}})
	require.NoError(t, err)

	res, err := c.PopGeneration(ctx, runner, checkIn("runner-rig"))
	require.NoError(t, err)
	require.NotNil(t, res.Envelope)

	clk.Step(2 * time.Second)
	rec, err := c.DeliverGeneration(ctx, res.Envelope.ID, "first answer")
	require.NoError(t, err)
	assert.Greater(t, rec.Kudos, float64(0))
	assert.False(t, rec.Duplicate)

	// A retried submit earns nothing and overwrites nothing.
	again, err := c.DeliverGeneration(ctx, res.Envelope.ID, "second answer")
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Zero(t, again.Kudos)
	assert.Equal(t, int64(1), requester.Usage.Requests)
	assert.Equal(t, int64(1), runner.Contributions.Fulfillments)

	st, err := c.PromptStatus(wp.ID, false)
	require.NoError(t, err)
	require.Len(t, st.Generations, 1)
	assert.Equal(t, "first answer", st.Generations[0].Text)
}

func TestCoordinator_Deliver_UnknownGeneration(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestEngine(t)
	_, err := c.DeliverGeneration(context.Background(), "no-such-id", "text")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCoordinator_Pop_SkipReasons(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestEngine(t)
	ctx := context.Background()

	requester, err := c.RegisterUser("requester", "")
	require.NoError(t, err)
	runner, err := c.RegisterUser("runner", "")
	require.NoError(t, err)

	_, err = c.SubmitPrompt(requester, domain.PromptRequest{
		Prompt: "needs a big window",
		Params: map[string]any{"max_length": float64(400)},
	})
	require.NoError(t, err)

	req := checkIn("small-rig")
	req.MaxLength = 100
	res, err := c.PopGeneration(ctx, runner, req)
	require.NoError(t, err)
	assert.Nil(t, res.Envelope)
	assert.Equal(t, map[string]int{domain.SkippedMaxLength: 1}, res.Skipped)

	// The same worker with enough capacity picks the prompt up.
	req.MaxLength = 512
	res, err = c.PopGeneration(ctx, runner, req)
	require.NoError(t, err)
	assert.NotNil(t, res.Envelope)
}

func TestCoordinator_Pop_ModelAndServerFilters(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestEngine(t)
	ctx := context.Background()

	requester, err := c.RegisterUser("requester", "")
	require.NoError(t, err)
	runner, err := c.RegisterUser("runner", "")
	require.NoError(t, err)

	_, err = c.SubmitPrompt(requester, domain.PromptRequest{
		Prompt: "picky about models",
		Models: []string{"some-other-model"},
		Params: map[string]any{},
	})
	require.NoError(t, err)
	res, err := c.PopGeneration(ctx, runner, checkIn("rig-a"))
	require.NoError(t, err)
	assert.Nil(t, res.Envelope)
	assert.Equal(t, map[string]int{domain.SkippedModels: 1}, res.Skipped)

	// A prompt pinned to a specific worker id skips everyone else.
	rigA, ok := c.WorkerByName("rig-a")
	require.True(t, ok)
	_, err = c.SubmitPrompt(requester, domain.PromptRequest{
		Prompt:  "pinned",
		Servers: []string{rigA.ID},
		Params:  map[string]any{},
	})
	require.NoError(t, err)

	res, err = c.PopGeneration(ctx, runner, checkIn("rig-b"))
	require.NoError(t, err)
	assert.Nil(t, res.Envelope)
	assert.Equal(t, 1, res.Skipped[domain.SkippedServerID])

	res, err = c.PopGeneration(ctx, runner, checkIn("rig-a"))
	require.NoError(t, err)
	require.NotNil(t, res.Envelope)
	assert.Equal(t, "pinned", res.Envelope.Payload["prompt"])
}

func TestCoordinator_Pop_SoftpromptMatching(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestEngine(t)
	ctx := context.Background()

	requester, err := c.RegisterUser("requester", "")
	require.NoError(t, err)
	runner, err := c.RegisterUser("runner", "")
	require.NoError(t, err)

	_, err = c.SubmitPrompt(requester, domain.PromptRequest{
		Prompt:      "in the surreal style",
		Softprompts: []string{"surreal"},
		Params:      map[string]any{},
	})
	require.NoError(t, err)

	// A worker without the soft prompt cannot take the request.
	res, err := c.PopGeneration(ctx, runner, checkIn("plain-rig"))
	require.NoError(t, err)
	assert.Nil(t, res.Envelope)
	assert.Equal(t, map[string]int{domain.SkippedSoftprompt: 1}, res.Skipped)

	// A worker declaring a matching name gets it, and the envelope names the
	// worker's own soft prompt so it knows which one to load.
	req := checkIn("tuned-rig")
	req.Softprompts = []string{"unrelated", "surreal_pack_v2"}
	res, err = c.PopGeneration(ctx, runner, req)
	require.NoError(t, err)
	require.NotNil(t, res.Envelope)
	assert.Equal(t, "surreal_pack_v2", res.Envelope.Softprompt)
}

func TestCoordinator_Pop_KudosPriority(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestEngine(t)
	ctx := context.Background()

	poor, err := c.RegisterUser("poor", "")
	require.NoError(t, err)
	rich, err := c.RegisterUser("rich", "")
	require.NoError(t, err)
	rich.ModifyKudos(100, domain.KudosAccumulated)
	runner, err := c.RegisterUser("runner", "")
	require.NoError(t, err)

	_, err = c.SubmitPrompt(poor, domain.PromptRequest{Prompt: "first in line", Params: map[string]any{}})
	require.NoError(t, err)
	richWP, err := c.SubmitPrompt(rich, domain.PromptRequest{Prompt: "jumps the queue", Params: map[string]any{}})
	require.NoError(t, err)

	// The rich user's prompt dispatches first despite arriving second.
	res, err := c.PopGeneration(ctx, runner, checkIn("runner-rig"))
	require.NoError(t, err)
	require.NotNil(t, res.Envelope)
	assert.Equal(t, "jumps the queue", res.Envelope.Payload["prompt"])

	st, err := c.PromptStatus(richWP.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 0, st.QueuePosition)

	res, err = c.PopGeneration(ctx, runner, checkIn("runner-rig"))
	require.NoError(t, err)
	require.NotNil(t, res.Envelope)
	assert.Equal(t, "first in line", res.Envelope.Payload["prompt"])
}

func TestCoordinator_Pop_InvalidCheckIn(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestEngine(t)
	runner, err := c.RegisterUser("runner", "")
	require.NoError(t, err)

	_, err = c.PopGeneration(context.Background(), runner, usecase.CheckInRequest{Model: testModel})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = c.PopGeneration(context.Background(), runner, usecase.CheckInRequest{Name: "rig"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestCoordinator_Pop_UptimeKudos(t *testing.T) {
	t.Parallel()
	c, clk, _ := newTestEngine(t)
	ctx := context.Background()

	owner, err := c.RegisterUser("owner", "")
	require.NoError(t, err)

	// First check-in registers the worker; uptime starts accruing from here.
	_, err = c.PopGeneration(ctx, owner, checkIn("idle-rig"))
	require.NoError(t, err)

	clk.Step(250 * time.Second)
	_, err = c.PopGeneration(ctx, owner, checkIn("idle-rig"))
	require.NoError(t, err)
	clk.Step(250 * time.Second)
	_, err = c.PopGeneration(ctx, owner, checkIn("idle-rig"))
	require.NoError(t, err)

	worker, ok := c.WorkerByName("idle-rig")
	require.True(t, ok)
	assert.Equal(t, int64(500), worker.Uptime)
	assert.Zero(t, worker.Kudos, "no award before crossing the threshold")

	clk.Step(200 * time.Second)
	_, err = c.PopGeneration(ctx, owner, checkIn("idle-rig"))
	require.NoError(t, err)

	// 700 seconds of uptime crosses the 600 threshold; the award is the
	// model multiplier over 2.75, mirrored into the owner's balance.
	assert.Equal(t, int64(700), worker.Uptime)
	assert.InDelta(t, 0.98, worker.Kudos, 1e-9)
	assert.InDelta(t, 0.98, worker.KudosDetails.Uptime, 1e-9)
	assert.InDelta(t, 0.98, owner.Kudos, 1e-9)
}

func TestCoordinator_Pop_OracleFailureCachesMultiplierOne(t *testing.T) {
	t.Parallel()
	c, clk, oracle := newTestEngine(t)
	ctx := context.Background()

	requester, err := c.RegisterUser("requester", "")
	require.NoError(t, err)
	runner, err := c.RegisterUser("runner", "")
	require.NoError(t, err)
	_, err = c.SubmitPrompt(requester, domain.PromptRequest{Prompt: "hello", Params: map[string]any{}})
	require.NoError(t, err)

	req := checkIn("mystery-rig")
	req.Model = "unknown/mystery-model"
	res, err := c.PopGeneration(ctx, runner, req)
	require.NoError(t, err)
	require.NotNil(t, res.Envelope)

	clk.Step(2 * time.Second)
	rec, err := c.DeliverGeneration(ctx, res.Envelope.ID, "answer")
	require.NoError(t, err)
	// Unresolvable models fall back to multiplier 1: 80*1/21.
	assert.InDelta(t, 3.81, rec.Kudos, 1e-9)

	// The failure is cached; further traffic on the model stays local.
	_, err = c.PopGeneration(ctx, runner, req)
	require.NoError(t, err)
	assert.Equal(t, 1, oracle.callCount())
}
