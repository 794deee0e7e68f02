package schedule

// Presets are the built-in prayer times offered before any customization.
// They start disabled and active every day.
func Presets() []Schedule {
	everyDay := func() []int { return []int{0, 1, 2, 3, 4, 5, 6} }
	return []Schedule{
		{ID: "preset-morning", Name: "Morning Prayer", Time: Clock{Hour: 6}, DaysOfWeek: everyDay(), Icon: "☀️"},
		{ID: "preset-midday", Name: "Midday Prayer", Time: Clock{Hour: 12, Minute: 30}, DaysOfWeek: everyDay(), Icon: "🌤"},
		{ID: "preset-evening", Name: "Evening Prayer", Time: Clock{Hour: 18}, DaysOfWeek: everyDay(), Icon: "🌅"},
		{ID: "preset-night", Name: "Night Prayer", Time: Clock{Hour: 21, Minute: 30}, DaysOfWeek: everyDay(), Icon: "🌙"},
	}
}
