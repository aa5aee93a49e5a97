package mqtt

import "fmt"

// Topic layout:
//
//	roastsight/system/status        retained service online/offline status
//	roastsight/state/{measureID}    retained latest reading per measure
//	roastsight/event/command        command lifecycle events, not retained
const topicPrefix = "roastsight"

// Topics builds the topic strings the telemetry publisher uses.
type Topics struct{}

// SystemStatus is the retained service status topic, also used for the LWT.
func (Topics) SystemStatus() string {
	return topicPrefix + "/system/status"
}

// MeasureState returns the retained state topic for one measure.
func (Topics) MeasureState(measureID string) string {
	return fmt.Sprintf("%s/state/%s", topicPrefix, measureID)
}

// CommandEvent is the topic command lifecycle events are published on.
func (Topics) CommandEvent() string {
	return topicPrefix + "/event/command"
}
