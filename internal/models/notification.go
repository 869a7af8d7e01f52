package models

// NotificationType is the discriminator the peer attaches to every pushed
// notification. Entries with a type outside this set are dropped by the
// classifier without being forwarded.
type NotificationType string

const (
	TypeEventRow         NotificationType = "EventRow"
	TypeVariableState    NotificationType = "VariableState"
	TypeAlarmInfo        NotificationType = "AlarmInfo"
	TypeGroupState       NotificationType = "GroupState"
	TypeAreaState        NotificationType = "AreaState"
	TypeProtocolState    NotificationType = "ProtocolState"
	TypeConnectionStatus NotificationType = "ConnectionStatus"
	TypeServerState      NotificationType = "ServerState"
	TypeUnknown          NotificationType = "Unknown"
)

// ChannelCount is the fixed number of output channels exposed to the
// embedding framework.
const ChannelCount = 8

// ConnectionStatusChannel is the synthetic channel used for connect and
// disconnect signaling, decoupled from the peer's own notification types.
const ConnectionStatusChannel = 6

// channelIndex maps each known type to its fixed output slot.
var channelIndex = map[NotificationType]int{
	TypeEventRow:         0,
	TypeVariableState:    1,
	TypeAlarmInfo:        2,
	TypeGroupState:       3,
	TypeAreaState:        4,
	TypeProtocolState:    5,
	TypeConnectionStatus: ConnectionStatusChannel,
	TypeServerState:      7,
}

// ChannelIndex returns the output channel slot for a notification type and
// whether the type is one of the known, routable types.
func ChannelIndex(t NotificationType) (int, bool) {
	idx, ok := channelIndex[t]
	return idx, ok
}

// Notification is a single peer-pushed record: a type discriminator plus the
// generically decoded payload. Notifications are ephemeral; they live for one
// poll cycle and are discarded after dispatch.
type Notification struct {
	Type NotificationType
	Data map[string]interface{}
}

// ChannelItem is the shape delivered on an output channel. Every item wraps
// its content under a "notification" key the way the workflow host expects.
type ChannelItem map[string]interface{}

// FanOut is one poll cycle's dispatch: all 8 channels, in fixed order. Empty
// channels carry an empty list, never nil, so hosts always see 8 slots.
type FanOut struct {
	Channels [ChannelCount][]ChannelItem `json:"channels" msgpack:"channels"`
}

// NewFanOut returns a FanOut with every channel initialized to an empty list.
func NewFanOut() FanOut {
	var f FanOut
	for i := range f.Channels {
		f.Channels[i] = []ChannelItem{}
	}
	return f
}

// StatusItem builds a connection-status channel item carrying a message such
// as "Connection successful" or "Deconnection detected".
func StatusItem(message string) ChannelItem {
	return ChannelItem{
		"notification": map[string]interface{}{
			"type":    string(TypeConnectionStatus),
			"message": message,
		},
	}
}

// GenericItem builds the channel item shape used for all types except
// AlarmInfo: the decoded payload nested under "data".
func GenericItem(n Notification) ChannelItem {
	return ChannelItem{
		"notification": map[string]interface{}{
			"type": string(n.Type),
			"data": n.Data,
		},
	}
}

// AlarmItem builds the reshaped AlarmInfo item, surfacing the Alarm and
// Description sub-fields of the payload's Data element by name.
func AlarmItem(n Notification) ChannelItem {
	var alarm, description interface{}
	if data, ok := n.Data["Data"].(map[string]interface{}); ok {
		alarm = data["Alarm"]
		description = data["Description"]
	}
	return ChannelItem{
		"notification": map[string]interface{}{
			"type":        string(TypeAlarmInfo),
			"Alarm":       alarm,
			"Description": description,
		},
	}
}
