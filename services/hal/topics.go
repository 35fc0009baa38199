// services/hal/topics.go
package hal

import "ventcode-go/bus"

func topicConfigHAL() bus.Topic { return bus.T("config", "hal") }

// hal/cap/<domain>/<kind>/<name>/...
func capBase(a CapAddr) bus.Topic { return bus.T("hal", "cap", a.Domain, a.Kind, a.Name) }

func capInfo(a CapAddr) bus.Topic   { return capBase(a).Append("info") }
func capStatus(a CapAddr) bus.Topic { return capBase(a).Append("status") }
func capValue(a CapAddr) bus.Topic  { return capBase(a).Append("value") }
func capEvent(a CapAddr) bus.Topic  { return capBase(a).Append("event") }

// hal/cap/+/+/+/control/+
func ctrlWildcard() bus.Topic { return bus.T("hal", "cap", "+", "+", "+", "control", "+") }
