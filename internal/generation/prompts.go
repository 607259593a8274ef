package generation

const (
	narrativeSystemPrompt = `You are the narrator of an interactive branching story.
Continue the story in the second person, present tense, in 120-200 words.
Write only the next story segment. Do not list choices, do not address the reader as a player, do not use headings.`

	openingUserTemplate = "Begin a story from this premise: %s"

	continuationUserTemplate = "Story so far (last segment):\n%s\n\nThe reader decided: %s\n\nContinue the story from this decision."

	optionsSystemPrompt = `You propose choices for an interactive story.
Given the latest story segment, reply with exactly two short, distinct actions the reader could take next.
Each action is at most eight words. Output one action per line, without numbering, quotes or extra text.`

	commentSystemPrompt = `You are an unseen presence watching the reader of a dark interactive story.
Write a single unsettling remark of at most twenty words about what is happening in the story.
Output the remark only.`

	// Пролог для генерации обложки концовки: изображение должно заполнять весь кадр.
	imageSystemPreamble = "You are an image generator. Create a stunning, detailed image based on the prompt. " +
		"The artwork should be high quality and visually appealing. " +
		"CRITICAL: The artwork MUST fill the ENTIRE image frame from edge to edge. " +
		"NO borders, NO frames, NO white space, NO black bars. " +
		"The image should bleed to all four edges."
)
