package router

// DefaultRules returns the fitness, nutrition and general keyword sets in
// priority order.
func DefaultRules() []Rule {
	return []Rule{
		{
			Handler: "fitness",
			Keywords: []string{
				"workout", "working out", "work out", "exercise", "gym", "fitness",
				"training", "run", "lift", "cardio", "strength", "muscle",
				"pushup", "squat", "deadlift", "marathon", "sprint", "yoga",
				"pilates", "crossfit", "weightlifting",
			},
		},
		{
			Handler: "nutrition",
			Keywords: []string{
				"food", "eat", "meal", "diet", "nutrition", "recipe", "cook",
				"calories", "protein", "carbs", "fat", "vitamins", "hungry",
				"breakfast", "lunch", "dinner", "snack", "vegetarian", "vegan",
				"keto", "weight loss",
			},
		},
		{
			// Short greetings like "hi" are left out: they occur inside
			// ordinary words ("healthier").
			Handler: "general",
			Base:    0.85,
			Keywords: []string{
				"hello", "hey", "good morning", "good afternoon", "good evening",
				"how are you", "what's up", "greetings", "howdy",
			},
		},
	}
}
