package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"support-agent/internal/domain"
)

const (
	skState      = "STATE#"
	pkChatLog    = "CHATLOG"
	pkAlert      = "ALERT"
	skPrefixTS   = "TS#"
	stateTTL     = 30 * 24 * time.Hour // 30-day session expiry
	sortableTime = "2006-01-02T15:04:05.000000000Z"
	// maxRecentLogs caps a single RecentLogs read.
	maxRecentLogs = 1000
)

// ErrStateConflict is returned when the stored state changed since it was loaded.
var ErrStateConflict = errors.New("repository: conversation state was modified concurrently")

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Client stores conversation state, the chat log stream and alerts in a
// single DynamoDB table.
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

func sessionPK(sessionID string) string {
	return "SESSION#" + sessionID
}

// timeSK returns a lexicographically sortable sort key with a unique suffix.
func timeSK(ts time.Time) string {
	return skPrefixTS + ts.UTC().Format(sortableTime) + "#" + uuid.NewString()
}

func ttlValue() int64 {
	return time.Now().Add(stateTTL).Unix()
}

// GetState loads the state for a session, or a fresh zero state at version 0.
func (c *Client) GetState(ctx context.Context, sessionID string) (*domain.ConversationState, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			"SK": &types.AttributeValueMemberS{Value: skState},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: GetState get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.NewConversationState(sessionID), nil
	}
	state, err := itemToState(out.Item)
	if err != nil {
		return nil, fmt.Errorf("repository: GetState decode: %w", err)
	}
	state.SessionID = sessionID
	return state, nil
}

// SaveState writes state if the stored version still equals state.Version,
// then advances state.Version. A lost race returns ErrStateConflict.
func (c *Client) SaveState(ctx context.Context, state *domain.ConversationState) error {
	if state == nil || strings.TrimSpace(state.SessionID) == "" {
		return errors.New("repository: SaveState: session id is required")
	}

	next := state.Version + 1
	in := &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      stateItem(state, next),
	}
	if state.Version == 0 {
		in.ConditionExpression = aws.String("attribute_not_exists(PK)")
	} else {
		in.ConditionExpression = aws.String("version = :expected")
		in.ExpressionAttributeValues = map[string]types.AttributeValue{
			":expected": numAttr(state.Version),
		}
	}

	if _, err := c.api.PutItem(ctx, in); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("repository: SaveState %s: %w", state.SessionID, ErrStateConflict)
		}
		return fmt.Errorf("repository: SaveState: %w", err)
	}
	state.Version = next
	return nil
}

// AppendLog appends a record to the chat log stream.
func (c *Client) AppendLog(ctx context.Context, rec domain.LogRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                logItem(rec),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: AppendLog: %w", err)
	}
	return nil
}

// RecentLogs returns up to limit log records, newest first, following query
// pages until limit records are read or the stream ends.
func (c *Client) RecentLogs(ctx context.Context, limit int) ([]domain.LogRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	limit = min(limit, maxRecentLogs)
	pages := dynamodb.NewQueryPaginator(c.api, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: pkChatLog},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixTS},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})

	recs := make([]domain.LogRecord, 0, limit)
	for pages.HasMorePages() && len(recs) < limit {
		out, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("repository: RecentLogs query: %w", err)
		}
		for _, item := range out.Items {
			if len(recs) == limit {
				break
			}
			rec, err := itemToLog(item)
			if err != nil {
				return nil, fmt.Errorf("repository: RecentLogs unmarshal: %w", err)
			}
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

// SaveAlert persists one alert record.
func (c *Client) SaveAlert(ctx context.Context, alert domain.AlertRecord) error {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"PK":        &types.AttributeValueMemberS{Value: pkAlert},
			"SK":        &types.AttributeValueMemberS{Value: timeSK(alert.Timestamp)},
			"actorRole": &types.AttributeValueMemberS{Value: alert.ActorRole},
			"flag":      &types.AttributeValueMemberS{Value: alert.Flag},
			"timestamp": &types.AttributeValueMemberS{Value: alert.Timestamp.UTC().Format(time.RFC3339Nano)},
			"message":   &types.AttributeValueMemberS{Value: alert.Message},
			"type":      &types.AttributeValueMemberS{Value: alert.Type},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: SaveAlert: %w", err)
	}
	return nil
}

func stateItem(s *domain.ConversationState, version int64) map[string]types.AttributeValue {
	history := make([]types.AttributeValue, 0, len(s.History))
	for _, t := range s.History {
		history = append(history, &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
			"role":    &types.AttributeValueMemberS{Value: t.Role},
			"content": &types.AttributeValueMemberS{Value: t.Content},
		}})
	}
	inputs := make([]types.AttributeValue, 0, len(s.RecentInputs))
	for _, in := range s.RecentInputs {
		inputs = append(inputs, &types.AttributeValueMemberS{Value: in})
	}

	item := map[string]types.AttributeValue{
		"PK":              &types.AttributeValueMemberS{Value: sessionPK(s.SessionID)},
		"SK":              &types.AttributeValueMemberS{Value: skState},
		"sessionId":       &types.AttributeValueMemberS{Value: s.SessionID},
		"history":         &types.AttributeValueMemberL{Value: history},
		"recentInputs":    &types.AttributeValueMemberL{Value: inputs},
		"flagScore":       floatAttr(s.FlagScore),
		"escalationFired": &types.AttributeValueMemberBOOL{Value: s.EscalationFired},
		"version":         numAttr(version),
		"lastActivity":    &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		"ttl":             numAttr(ttlValue()),
	}
	if s.LastDetectedFlag != "" {
		item["lastDetectedFlag"] = &types.AttributeValueMemberS{Value: s.LastDetectedFlag}
	}
	return item
}

func itemToState(item map[string]types.AttributeValue) (*domain.ConversationState, error) {
	s := &domain.ConversationState{}

	var err error
	if s.Version, err = int64Attr(item, "version"); err != nil {
		return nil, err
	}
	if s.FlagScore, err = floatAttrValue(item, "flagScore"); err != nil {
		return nil, err
	}
	if v, ok := item["escalationFired"].(*types.AttributeValueMemberBOOL); ok {
		s.EscalationFired = v.Value
	}
	s.LastDetectedFlag, _ = strAttr(item, "lastDetectedFlag") // optional

	if l, ok := item["history"].(*types.AttributeValueMemberL); ok {
		for i, v := range l.Value {
			m, ok := v.(*types.AttributeValueMemberM)
			if !ok {
				return nil, fmt.Errorf("repository: history[%d] is not a map", i)
			}
			role, err := strAttr(m.Value, "role")
			if err != nil {
				return nil, err
			}
			content, err := strAttr(m.Value, "content")
			if err != nil {
				return nil, err
			}
			s.History = append(s.History, domain.Turn{Role: role, Content: content})
		}
	}
	if l, ok := item["recentInputs"].(*types.AttributeValueMemberL); ok {
		for i, v := range l.Value {
			str, ok := v.(*types.AttributeValueMemberS)
			if !ok {
				return nil, fmt.Errorf("repository: recentInputs[%d] is not a string", i)
			}
			s.RecentInputs = append(s.RecentInputs, str.Value)
		}
	}
	return s, nil
}

func logItem(rec domain.LogRecord) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: pkChatLog},
		"SK":        &types.AttributeValueMemberS{Value: timeSK(rec.Timestamp)},
		"sessionId": &types.AttributeValueMemberS{Value: rec.SessionID},
		"actor":     &types.AttributeValueMemberS{Value: rec.Actor},
		"content":   &types.AttributeValueMemberS{Value: rec.Content},
		"timestamp": &types.AttributeValueMemberS{Value: rec.Timestamp.UTC().Format(time.RFC3339Nano)},
		"actorRole": &types.AttributeValueMemberS{Value: rec.ActorRole},
	}
	if rec.FlagScore != nil {
		item["flagScore"] = floatAttr(*rec.FlagScore)
	}
	if rec.FlagLabel != "" {
		item["flagLabel"] = &types.AttributeValueMemberS{Value: rec.FlagLabel}
	}
	return item
}

func itemToLog(item map[string]types.AttributeValue) (domain.LogRecord, error) {
	actor, err := strAttr(item, "actor")
	if err != nil {
		return domain.LogRecord{}, err
	}
	content, err := strAttr(item, "content")
	if err != nil {
		return domain.LogRecord{}, err
	}
	rawTS, err := strAttr(item, "timestamp")
	if err != nil {
		return domain.LogRecord{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, rawTS)
	if err != nil {
		return domain.LogRecord{}, fmt.Errorf("repository: parse timestamp: %w", err)
	}
	role, _ := strAttr(item, "actorRole")      // allow empty
	sessionID, _ := strAttr(item, "sessionId") // allow empty
	label, _ := strAttr(item, "flagLabel")     // allow empty

	rec := domain.LogRecord{
		SessionID: sessionID,
		Actor:     actor,
		Content:   content,
		Timestamp: ts,
		ActorRole: role,
		FlagLabel: label,
	}
	if _, ok := item["flagScore"]; ok {
		score, err := floatAttrValue(item, "flagScore")
		if err != nil {
			return domain.LogRecord{}, err
		}
		rec.FlagScore = &score
	}
	return rec, nil
}

func numAttr(n int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

func floatAttr(f float64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatFloat(f, 'f', -1, 64)}
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func numAttrValue(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a number", key)
	}
	return n.Value, nil
}

func int64Attr(item map[string]types.AttributeValue, key string) (int64, error) {
	raw, err := numAttrValue(item, key)
	if err != nil {
		return 0, err
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

func floatAttrValue(item map[string]types.AttributeValue, key string) (float64, error) {
	raw, err := numAttrValue(item, key)
	if err != nil {
		return 0, err
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
