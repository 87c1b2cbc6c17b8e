package wbsync

import (
	"context"
	"encoding/json"
	"io"

	"bitbucket.org/mmdatafocus/stocks_sync/config"
	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"
)

// PublishSyncRun hands a queued run off to the background worker via pubsub.
func PublishSyncRun(ctx context.Context, cfg Config, runId uint, triggeredBy string) error {
	topicName := cfg.SyncTopic
	if topicName == "" {
		topicName = "stocks-sync"
	}

	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}

	topic := client.Topic(topicName)
	if envBool("STOCKS_SYNC_CREATE_TOPIC", false) {
		topic, err = config.CreateTopicIfNotExists(client, topicName)
		if err != nil {
			return err
		}
	}

	payload := SyncPubSubPayload{
		RunId:       runId,
		Mode:        cfg.Mode,
		TriggeredBy: triggeredBy,
	}
	data, _ := json.Marshal(payload)
	res := topic.Publish(ctx, &pubsub.Message{Data: data})
	_, err = res.Get(ctx)
	return err
}

// PubSubPushHandler accepts pubsub push deliveries. Malformed envelopes are
// acked with 204 so they are not redelivered forever; a nil syncer answers
// 503 so delivery is retried once the service finishes connecting.
func PubSubPushHandler(syncer func() *Syncer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !envBool("ENABLE_STOCKS_PUBSUB_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var payload SyncPubSubPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}
		if payload.RunId == 0 {
			c.Status(204)
			return
		}

		s := syncer()
		if s == nil {
			c.Status(503)
			return
		}
		_ = s.ProcessRun(c.Request.Context(), payload.RunId)
		c.Status(204)
	}
}
