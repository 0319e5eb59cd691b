package notify

import (
	"context"
	"fmt"

	fcm "google.golang.org/api/fcm/v1"
	"google.golang.org/api/option"
)

// FCMConfig configures Firebase Cloud Messaging.
type FCMConfig struct {
	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`
}

// FCM sends data messages through the FCM HTTP v1 API.
type FCM struct {
	svc    *fcm.Service
	parent string
}

// NewFCM creates the FCM client. Extra options are appended after the
// credentials, so tests can point the client at a fake endpoint.
func NewFCM(ctx context.Context, cfg FCMConfig, opts ...option.ClientOption) (*FCM, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("notify: fcm project id is required")
	}

	var all []option.ClientOption
	if cfg.CredentialsFile != "" {
		all = append(all, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	all = append(all, opts...)

	svc, err := fcm.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("notify: new fcm service: %w", err)
	}
	return &FCM{svc: svc, parent: "projects/" + cfg.ProjectID}, nil
}

// Send delivers msg to its Token as a data-only message.
func (f *FCM) Send(ctx context.Context, msg Message) error {
	if msg.Token == "" {
		return ErrNoRecipient
	}

	req := &fcm.SendMessageRequest{
		Message: &fcm.Message{
			Token: msg.Token,
			Data:  msg.Data(),
		},
	}
	if _, err := f.svc.Projects.Messages.Send(f.parent, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("fcm send: %w", err)
	}
	return nil
}
