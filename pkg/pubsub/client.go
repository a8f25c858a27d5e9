package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/javery-app/javery-backend/pkg/config"
	"github.com/javery-app/javery-backend/pkg/logger"
)

// Client wraps the Pub/Sub v2 client with the order topic and the
// notification subscription this backend depends on.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
}

const (
	kindTopic        = "topics"
	kindSubscription = "subscriptions"
)

// resource is a topic or subscription the client must find at startup.
type resource struct {
	kind string
	name string
}

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoResources       = errors.New("pubsub topic or subscription name is required")
	errClientNotReady    = errors.New("pubsub client not initialized")
)

// NewClient dials Pub/Sub and fails if a configured topic or subscription is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}

	var opts []option.ClientOption
	if gcp.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(gcp.CredentialsJSON)))
	}

	raw, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{client: raw, projectID: projectID, cfg: cfg}
	if err := c.verify(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"orders_topic":              cfg.OrdersTopic,
			"notification_subscription": cfg.NotificationSubscription,
		}), "pubsub client initialized")
	}
	return c, nil
}

func configuredResources(cfg config.PubSubConfig) []resource {
	var out []resource
	if name := strings.TrimSpace(cfg.OrdersTopic); name != "" {
		out = append(out, resource{kind: kindTopic, name: name})
	}
	if name := strings.TrimSpace(cfg.NotificationSubscription); name != "" {
		out = append(out, resource{kind: kindSubscription, name: name})
	}
	return out
}

func (c *Client) verify(ctx context.Context) error {
	wanted := configuredResources(c.cfg)
	if len(wanted) == 0 {
		return errNoResources
	}
	for _, r := range wanted {
		if err := c.lookup(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) lookup(ctx context.Context, r resource) error {
	full := resourceName(c.projectID, r.kind, r.name)
	if full == "" {
		return fmt.Errorf("%s %q not configured", strings.TrimSuffix(r.kind, "s"), r.name)
	}

	var err error
	switch r.kind {
	case kindTopic:
		_, err = c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: full})
	default:
		_, err = c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: full})
	}
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %q does not exist", strings.TrimSuffix(r.kind, "s"), r.name)
	default:
		return fmt.Errorf("looking up %s %q: %w", strings.TrimSuffix(r.kind, "s"), r.name, err)
	}
}

// Subscription accepts a short subscription ID or a full resource name.
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	if full := resourceName(c.projectID, kindSubscription, name); full != "" {
		return c.client.Subscriber(full)
	}
	return nil
}

// NotificationSubscription feeds the push notification worker.
func (c *Client) NotificationSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.NotificationSubscription)
}

// Publisher accepts a short topic ID or a full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	if full := resourceName(c.projectID, kindTopic, name); full != "" {
		return c.client.Publisher(full)
	}
	return nil
}

// Ping re-checks every configured topic and subscription.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errClientNotReady
	}
	return c.verify(ctx)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func resourceName(projectID, kind, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+kind+"/") {
		return n
	}
	p := strings.TrimSpace(projectID)
	if p == "" {
		return ""
	}
	return "projects/" + p + "/" + kind + "/" + n
}
