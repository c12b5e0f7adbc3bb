package service

// Limits - ограничения на содержимое команд.
type Limits struct {
	MaxMessageLength int
	MaxPollOptions   int
}

func DefaultLimits() Limits {
	return Limits{
		MaxMessageLength: 4000,
		MaxPollOptions:   10,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxMessageLength <= 0 {
		l.MaxMessageLength = d.MaxMessageLength
	}
	if l.MaxPollOptions <= 0 {
		l.MaxPollOptions = d.MaxPollOptions
	}
	return l
}
