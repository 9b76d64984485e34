package notification

import (
	alertdomain "plateping-backend/internal/alert/domain"
	"plateping-backend/pkg/push"
)

// Rendered is the message for one escalation step of one urgency tier.
type Rendered struct {
	Title    string
	Body     string
	Priority push.Priority
	Sound    string
	Color    string
}

type ladder struct {
	title  string
	bodies []string
	sound  string
	color  string
}

var ladders = map[alertdomain.Urgency]ladder{
	alertdomain.UrgencyLow: {
		title: "Parking notice",
		bodies: []string{
			"Heads up: your car may be in someone's way.",
			"Your car is still in someone's way.",
			"Please move your car when you get a chance.",
		},
		sound: "default",
		color: "#455A64",
	},
	alertdomain.UrgencyNormal: {
		title: "Your car is blocking someone",
		bodies: []string{
			"Someone is blocked in by your car.",
			"Reminder: someone is still waiting for you to move your car.",
			"Please move your car now, someone is still blocked.",
		},
		sound: "default",
		color: "#1976D2",
	},
	alertdomain.UrgencyHigh: {
		title: "Urgent: blocked driver",
		bodies: []string{
			"Your car is blocking someone who needs to leave.",
			"Urgent: a driver is stuck behind your car.",
			"Move your car now, the driver has been waiting a long time.",
		},
		sound: "default",
		color: "#F57C00",
	},
	alertdomain.UrgencyUrgent: {
		title: "EMERGENCY: move your car",
		bodies: []string{
			"Your car must be moved immediately.",
			"EMERGENCY: a driver is trapped by your car, move it now.",
			"FINAL NOTICE: your car is blocking an emergency, it may be towed.",
		},
		sound: "alarm",
		color: "#D32F2F",
	},
}

// RenderEscalation maps (urgency tier, escalation step, optional custom text)
// to the notification to send. Steps past the end of a tier's ladder plateau
// at the harshest message. A custom message substitutes only the first-step
// body; later steps always use the fixed ladder.
func RenderEscalation(urgency alertdomain.Urgency, step int, customMessage string) Rendered {
	l, ok := ladders[urgency]
	if !ok {
		l = ladders[alertdomain.UrgencyNormal]
	}

	if step < 0 {
		step = 0
	}
	if step > len(l.bodies)-1 {
		step = len(l.bodies) - 1
	}

	body := l.bodies[step]
	if step == 0 && customMessage != "" {
		body = customMessage
	}

	return Rendered{
		Title:    l.title,
		Body:     body,
		Priority: priorityFor(urgency, step),
		Sound:    l.sound,
		Color:    l.color,
	}
}

// priorityFor implements the delivery-priority policy: urgent and high tiers
// always wake the device; normal starts low-pressure and turns high once
// escalated; low never does.
func priorityFor(urgency alertdomain.Urgency, step int) push.Priority {
	switch urgency {
	case alertdomain.UrgencyUrgent, alertdomain.UrgencyHigh:
		return push.PriorityHigh
	case alertdomain.UrgencyNormal:
		if step > 0 {
			return push.PriorityHigh
		}
	}
	return push.PriorityNormal
}
