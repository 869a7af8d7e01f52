package poller

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/appvision-bridge/bridge/internal/models"
)

// xmlNode decodes arbitrary XML into a generic tree. The peer's notification
// payloads are schema-less from our point of view, so everything becomes
// nested key/value structures.
type xmlNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []xmlNode  `xml:",any"`
	Text     string     `xml:",chardata"`
}

// ParseNotifications decodes an ArrayOfNotification body into notification
// records. The type discriminator is the first non-absent of the entry's
// explicit type attribute and its Type child element; entries with neither
// are typed Unknown and dropped downstream.
func ParseNotifications(body string) ([]models.Notification, error) {
	var root xmlNode
	if err := xml.Unmarshal([]byte(body), &root); err != nil {
		return nil, fmt.Errorf("decoding notification batch: %w", err)
	}

	notifs := make([]models.Notification, 0, len(root.Children))
	for _, entry := range root.Children {
		data, _ := nodeValue(entry).(map[string]interface{})
		if data == nil {
			data = map[string]interface{}{}
		}
		notifs = append(notifs, models.Notification{
			Type: discriminate(entry, data),
			Data: data,
		})
	}
	return notifs, nil
}

func discriminate(entry xmlNode, data map[string]interface{}) models.NotificationType {
	for _, attr := range entry.Attrs {
		if attr.Name.Local == "type" && attr.Value != "" {
			return models.NotificationType(attr.Value)
		}
	}
	if t, ok := data["Type"].(string); ok && t != "" {
		return models.NotificationType(t)
	}
	return models.TypeUnknown
}

// nodeValue converts a node into either its trimmed text (leaf) or a map of
// its children and attributes. Repeated child names collapse into a slice so
// list-shaped payloads survive the generic decode.
func nodeValue(n xmlNode) interface{} {
	if len(n.Children) == 0 && len(n.Attrs) == 0 {
		return strings.TrimSpace(n.Text)
	}

	m := make(map[string]interface{})
	for _, attr := range n.Attrs {
		m[attr.Name.Local] = attr.Value
	}
	if len(n.Children) == 0 {
		if text := strings.TrimSpace(n.Text); text != "" {
			m["value"] = text
		}
		return m
	}
	for _, child := range n.Children {
		key := child.XMLName.Local
		value := nodeValue(child)
		switch existing := m[key].(type) {
		case nil:
			m[key] = value
		case []interface{}:
			m[key] = append(existing, value)
		default:
			m[key] = []interface{}{existing, value}
		}
	}
	return m
}
