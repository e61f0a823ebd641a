package pubsub

import (
	"testing"

	"github.com/angelmondragon/storefront-settlement/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	cases := []struct {
		project, name, want string
	}{
		{"proj", "audit", "projects/proj/topics/audit"},
		{"proj", " audit ", "projects/proj/topics/audit"},
		{"proj", "projects/other/topics/audit", "projects/other/topics/audit"},
		{"", "audit", ""},
		{"proj", "", ""},
	}
	for _, tc := range cases {
		if got := TopicResourceName(tc.project, tc.name); got != tc.want {
			t.Fatalf("TopicResourceName(%q, %q) = %q, want %q", tc.project, tc.name, got, tc.want)
		}
	}
}

func TestTopicNamesSkipsBlank(t *testing.T) {
	names := TopicNames(config.PubSubConfig{NotificationTopic: "notify", AuditTopic: "  "})
	if len(names) != 1 || names[0] != "notify" {
		t.Fatalf("unexpected topic names %v", names)
	}
}
