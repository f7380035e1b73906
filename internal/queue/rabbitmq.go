package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/LiteObject/github-traffic-monitor/internal/models"
	"github.com/LiteObject/github-traffic-monitor/pkg/logger"
	"github.com/streadway/amqp"
)

const (
	collectQueue = "traffic_collect"
	runsQueue    = "traffic_runs"
)

type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	channel, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	return &RabbitMQ{
		conn:    conn,
		channel: channel,
	}, nil
}

// RunCompletedEvent announces one finished collection run to downstream
// consumers (visualization, alerting).
type RunCompletedEvent struct {
	RunID            int       `json:"run_id"`
	Username         string    `json:"username"`
	CollectedAt      time.Time `json:"collected_at"`
	RepoCount        int       `json:"repo_count"`
	TotalViews       int       `json:"total_views"`
	TotalUniqueViews int       `json:"total_unique_views"`
	TotalClones      int       `json:"total_clones"`
}

func (r *RabbitMQ) PublishRunCompleted(ctx context.Context, run *models.TrafficRun) error {
	queue, err := r.channel.QueueDeclare(
		runsQueue,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	event := RunCompletedEvent{
		RunID:            run.ID,
		Username:         run.Username,
		CollectedAt:      run.CollectedAt,
		RepoCount:        run.RepoCount,
		TotalViews:       run.Summary.TotalViews,
		TotalUniqueViews: run.Summary.TotalUniqueViews,
		TotalClones:      run.Summary.TotalClones,
	}

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return r.channel.Publish(
		"",
		queue.Name,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

// ConsumeCollectRequests triggers the handler for every on-demand
// collection request that arrives on the collect queue.
func (r *RabbitMQ) ConsumeCollectRequests(ctx context.Context, handler func(username string) error) error {
	queue, err := r.channel.QueueDeclare(
		collectQueue,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	msgs, err := r.channel.Consume(
		queue.Name,
		"",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	go func() {
		for d := range msgs {
			var msg struct {
				Username string `json:"username"`
			}

			if err := json.Unmarshal(d.Body, &msg); err != nil {
				logger.Error("error decoding collect request: %v", err)
				continue
			}

			if err := handler(msg.Username); err != nil {
				logger.Error("error handling collect request: %v", err)
			}
		}
	}()

	return nil
}

func (r *RabbitMQ) Close() error {
	if err := r.channel.Close(); err != nil {
		return err
	}
	return r.conn.Close()
}
