// Package openai interprets free-text questions to the bot with an OpenAI model
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"
)

// Commands an Intent can resolve to
const (
	CommandStatus  = "status"
	CommandHistory = "history"
	CommandHelp    = "help"
	CommandNone    = "none"
)

// Intent is the structured output of the model
type Intent struct {
	Command     string `json:"command" jsonschema:"enum=status,enum=history,enum=help,enum=none" jsonschema_description:"Bot command that answers the message, or none"`
	Limit       int    `json:"limit" jsonschema_description:"Number of past readings requested for history, 0 when not stated"`
	UserMessage string `json:"user_message" jsonschema_description:"A short reply in the user's language"`
}

// IntentService maps a free-text message to a bot command
type IntentService interface {
	Interpret(ctx context.Context, message, stationName string) (*Intent, error)
}

type intentService struct {
	client openai.Client
	schema interface{}
}

// GenerateSchema generates a JSON schema for a given type.
func GenerateSchema[T any]() interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

// NewIntentService creates an intent service. opts are passed to the client.
func NewIntentService(apiKey string, opts ...option.RequestOption) (IntentService, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is not set")
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &intentService{
		client: openai.NewClient(opts...),
		schema: GenerateSchema[Intent](),
	}, nil
}

// Interpret asks the model which command answers message
func (s *intentService) Interpret(ctx context.Context, message, stationName string) (*Intent, error) {
	systemPrompt := fmt.Sprintf(`You route messages for a river water level bot that watches the %s station.

The bot can:
- status: show the latest water level, bank level and status
- history: show recent water levels (set limit when the user asks for a number of readings)
- help: list the commands

If the message asks about the current level, flooding risk or whether the river is high, use status.
If it asks how the level changed over time, use history.
Anything else is none. Reply in the user's language (usually Thai) in user_message.

Output strictly in JSON.`, stationName)

	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "bot_intent",
		Description: openai.String("Bot command chosen for the user's message"),
		Schema:      s.schema,
		Strict:      openai.Bool(true),
	}

	chat, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(message),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: schemaParam},
		},
		Model: openai.ChatModelGPT4o,
	})
	if err != nil {
		return nil, fmt.Errorf("error calling OpenAI API: %w", err)
	}
	if len(chat.Choices) == 0 || chat.Choices[0].Message.Content == "" {
		return nil, errors.New("received empty response from OpenAI")
	}

	var intent Intent
	if err := json.Unmarshal([]byte(chat.Choices[0].Message.Content), &intent); err != nil {
		log.Warn().Err(err).Str("raw", chat.Choices[0].Message.Content).Msg("Failed to unmarshal OpenAI response")
		return nil, fmt.Errorf("error unmarshalling OpenAI response: %w", err)
	}
	switch intent.Command {
	case CommandStatus, CommandHistory, CommandHelp, CommandNone:
	default:
		intent.Command = CommandNone
	}
	return &intent, nil
}
