package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/chatrelay/pkg/models"
)

type fakeModel struct {
	lastMessages []llms.MessageContent
	response     *llms.ContentResponse
	err          error
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.lastMessages = messages
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", nil
}

func textResponse(text string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: text}},
	}
}

func newTestConnector(model llms.Model) *Connector {
	return &Connector{
		provider: ProviderOpenAI,
		llm:      model,
		options:  Options{Provider: ProviderOpenAI, Model: "test-model", Temperature: 0.5},
	}
}

func TestGenerateReplyMapsRoles(t *testing.T) {
	fake := &fakeModel{response: textResponse("sure thing")}
	c := newTestConnector(fake)

	history := []models.Message{
		{Role: models.RoleSystem, Content: "persona"},
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "hello"},
		{Role: models.RoleUser, Content: "help me"},
	}

	reply, err := c.GenerateReply(context.Background(), history)
	require.NoError(t, err)
	assert.Equal(t, "sure thing", reply)

	require.Len(t, fake.lastMessages, 4)
	assert.Equal(t, llms.ChatMessageTypeSystem, fake.lastMessages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, fake.lastMessages[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, fake.lastMessages[2].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, fake.lastMessages[3].Role)
}

func TestGenerateReplyTrimsWhitespace(t *testing.T) {
	fake := &fakeModel{response: textResponse("  padded reply \n")}
	c := newTestConnector(fake)

	reply, err := c.GenerateReply(context.Background(), []models.Message{{Role: models.RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "padded reply", reply)
}

func TestGenerateReplyEmptyResponse(t *testing.T) {
	tests := []struct {
		name string
		resp *llms.ContentResponse
	}{
		{name: "nil response", resp: nil},
		{name: "no choices", resp: &llms.ContentResponse{}},
		{name: "blank content", resp: textResponse("   ")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestConnector(&fakeModel{response: tt.resp})
			_, err := c.GenerateReply(context.Background(), []models.Message{{Role: models.RoleUser, Content: "hi"}})
			assert.ErrorIs(t, err, ErrEmptyCompletion)
		})
	}
}

func TestGenerateReplyWrapsTransportError(t *testing.T) {
	c := newTestConnector(&fakeModel{err: assert.AnError})

	_, err := c.GenerateReply(context.Background(), []models.Message{{Role: models.RoleUser, Content: "hi"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "completion call failed")
}

func TestNewConnectorUnsupportedProvider(t *testing.T) {
	_, err := NewConnector(context.Background(), Options{Provider: "skynet"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported provider")
}

func TestDefaultModelPerProvider(t *testing.T) {
	for _, p := range []Provider{ProviderOpenAI, ProviderAnthropic, ProviderGoogleAI, ProviderOllama, ProviderCohere} {
		assert.NotEmpty(t, defaultModel(p), "provider %s has no default model", p)
	}
	assert.Empty(t, defaultModel("skynet"))
}
