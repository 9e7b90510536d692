package ai

import "fmt"

const (
	storySystemPrompt  = "You are a creative story writing assistant, specializing in creating stories for children."
	updateSystemPrompt = "You are a story update assistant. Compare the changes between the two drawings and update the story accordingly."
	syncSystemPrompt   = "Update the existing story based on new ideas mentioned in the conversation."

	newStoryPrompt = "Please create a vivid and interesting story based on this drawing."

	guidingSystemPrompt = "You are StoryBuddy, a friendly story writing assistant for children."
	guidingPrompt       = "Here is the drawing and the story we made from it:\n%s\n" +
		"Ask the child two or three short, playful questions that help them add new characters, places or events to the drawing. " +
		"Reply with the questions only."

	drawingCompletedHint = " The child has just told you that they finished their drawing. " +
		"Praise it warmly and invite them to press the finish button so we can turn it into a story."

	// syncHistoryMessages - сколько последних сообщений чата учитывается при переносе идей в историю.
	syncHistoryMessages = 3
)

func continueStoryPrompt(story string) string {
	return fmt.Sprintf("Current story: %s\nPlease update the story based on the new drawing.", story)
}

func updateFromDrawingPrompt(story string) string {
	return fmt.Sprintf("Original story: %s\nPlease update the story based on the changes in the following two images. "+
		"The first is the old image, the second is the new image.", story)
}

func chatSystemPrompt(story string, drawingCompleted bool) string {
	if story == "" {
		story = "None"
	}
	prompt := fmt.Sprintf("You are StoryBuddy, a friendly story writing assistant. Current story: %s. "+
		"Please guide the user to provide more interesting plots or characters.", story)
	if drawingCompleted {
		prompt += drawingCompletedHint
	}
	return prompt
}

func syncFromChatPrompt(story, historyJSON string) string {
	return fmt.Sprintf("Current story: %s\nChat history: %s\nPlease incorporate elements from the conversation into the story.",
		story, historyJSON)
}
