package analyst

import (
	"fmt"

	"threatsense/models"
)

const reportPromptTemplate = `
You are an elite security analyst monitoring a surveillance feed.
A computer vision system has detected a potential threat.

########################################
# DETECTION DATA
########################################
- Primary Detection: %s
- People Count: %d

########################################
# TASK
########################################
Analyze the provided image frame and the detection data.
1. VALIDATE: Is this actually a threat? Context matters: smoke over a barbecue is normal, smoke over a forest is a threat.
2. EXPLAIN: Write a 1-sentence situational summary.
3. SCORE: Assign a severity score from 1 (Safe) to 10 (Critical).
4. RECOMMEND: List exactly 3 specific actionable steps for response personnel.

########################################
# OUTPUT
########################################
Return ONLY a single valid JSON object, no markdown:
{
  "summary": "<one sentence>",
  "severity_score": <integer 1-10>,
  "actions": ["<step 1>", "<step 2>", "<step 3>"]
}
`

const scenePrompt = `
You are an advanced visual security agent.
Analyze this image STRICTLY for the following disasters: 'Wildfire', 'Earthquake', 'Flood'.

########################################
# TASK
########################################
1. Classify the image into ONE of these categories: ['Wildfire', 'Earthquake', 'Flood', 'Normal'].
   Use 'Normal' if none of the specific disasters are clearly visible.
2. Count the number of visible people.
3. If a disaster is detected, provide a short 1-sentence summary and a severity score (1-10).

########################################
# OUTPUT
########################################
Return ONLY a single valid JSON object, no markdown:
{
  "classification": "<Wildfire | Earthquake | Flood | Normal>",
  "people_count": <integer>,
  "summary": "<one sentence, disasters only>",
  "severity_score": <integer 1-10, disasters only>
}
`

func reportPrompt(label models.Classification, peopleCount int) string {
	return fmt.Sprintf(reportPromptTemplate, label, peopleCount)
}
