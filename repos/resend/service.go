package resend

import (
	"context"
	"fmt"
	"log"
	"os"

	"cloud.google.com/go/firestore"
	resend "github.com/resend/resend-go/v2"

	"github.com/rackside/league-sync/repos/matchdb"
)

// Service sends league mail through Resend and keeps the per-match access
// list in Firestore.
type Service struct {
	firebaseClient *firestore.Client
	resendClient   *resend.Client
	hostURL        string
	fromAddress    string
}

// NewService creates a new empty service.
func NewService(firestoreClient *firestore.Client, hostURL string) *Service {
	resendKey := os.Getenv("RESEND_KEY")
	return &Service{
		firebaseClient: firestoreClient,
		resendClient:   resend.NewClient(resendKey),
		hostURL:        hostURL,
		fromAddress:    "scores@resend.dev",
	}
}

// SendAccessMail mails the captain a one-click access link for the match.
func (s *Service) SendAccessMail(ctx context.Context, request AccessRequest, accessCode string) error {
	body := getAccessTemplate(fmt.Sprintf("%s/get-access/%s", s.hostURL, accessCode))
	params := &resend.SendEmailRequest{
		From:    s.fromAddress,
		To:      []string{request.Email},
		Subject: "Your match scorekeeper access",
		Html:    body,
	}

	_, err := s.resendClient.Emails.Send(params)
	if err != nil {
		log.Printf("Failed to send access mail request: %v", err)
		return err
	}
	return nil
}

// SendMatchReport mails the final score once both teams have verified.
func (s *Service) SendMatchReport(ctx context.Context, match *matchdb.Match, homeWins, awayWins int) error {
	reportAddress := os.Getenv("REPORT_EMAIL")
	if reportAddress == "" {
		log.Printf("REPORT_EMAIL not set, skipping report for match %s", match.ID)
		return nil
	}

	body := getReportTemplate(match, homeWins, awayWins,
		fmt.Sprintf("%s/match/%s", s.hostURL, match.ID))
	params := &resend.SendEmailRequest{
		From:    s.fromAddress,
		To:      []string{reportAddress},
		Subject: fmt.Sprintf("Match verified: %s %d - %d %s", match.HomeTeamID, homeWins, awayWins, match.AwayTeamID),
		Html:    body,
	}

	_, err := s.resendClient.Emails.Send(params)
	if err != nil {
		log.Printf("Failed to send match report request: %v", err)
		return err
	}
	return nil
}

// GrantAccess adds the user to the match's allowed-users list.
func (s *Service) GrantAccess(ctx context.Context, matchID, userID string) error {
	docRef := s.firebaseClient.Collection("MatchSecrets").Doc(matchID)

	err := grantAccessToDoc(ctx, s, docRef, userID)
	if err != nil {
		log.Printf("Failed to update document: %v", err)
		return err
	}

	return nil
}

func grantAccessToDoc(ctx context.Context, s *Service, docRef *firestore.DocumentRef, userID string) error {
	// Transaction so two captains claiming at once both land in the list.
	err := s.firebaseClient.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(docRef)
		if err != nil {
			return err
		}

		var allowedUsers []string
		if data, err := doc.DataAt("allowed_users"); err == nil {
			if users, ok := data.([]interface{}); ok {
				for _, user := range users {
					if userStr, ok := user.(string); ok {
						allowedUsers = append(allowedUsers, userStr)
					}
				}
			}
		}

		for _, user := range allowedUsers {
			if user == userID {
				// Already on the list, nothing to write.
				return nil
			}
		}

		updatedUsers := append(allowedUsers, userID)
		return tx.Update(docRef, []firestore.Update{
			{Path: "allowed_users", Value: updatedUsers},
		})
	})
	return err
}

func getAccessTemplate(url string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <style>
        body {
            font-family: Arial, sans-serif;
            background-color: #f4f4f4;
            margin: 0;
            padding: 20px;
        }
        .container {
            background-color: #ffffff;
            max-width: 600px;
            margin: 0 auto;
            padding: 20px;
            box-shadow: 0 0 10px rgba(0,0,0,0.1);
        }
        .button {
            display: block;
            width: 200px;
            height: 50px;
            margin: 20px auto;
            background-color: #007BFF;
            color: #ffffff;
            font-size: 16px;
            text-align: center;
            line-height: 50px;
            text-decoration: none;
            border-radius: 5px;
        }
        .button:hover {
            background-color: #0056b3;
        }
    </style>
</head>
<body>
    <div class="container">
        <h2>Hello,</h2>
        <p>You have been granted scorekeeper access for tonight's match. Click the button below to open it:</p>
        <a href="%s" class="button">Open match</a>
        <p>Best regards,<br>The league office</p>
    </div>
</body>
</html>`, url)
}

func getReportTemplate(match *matchdb.Match, homeWins, awayWins int, url string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <style>
        body {
            font-family: Arial, sans-serif;
            background-color: #f4f4f4;
            margin: 0;
            padding: 20px;
        }
        .container {
            background-color: #ffffff;
            max-width: 600px;
            margin: 0 auto;
            padding: 20px;
            box-shadow: 0 0 10px rgba(0,0,0,0.1);
        }
        .score {
            font-size: 28px;
            text-align: center;
            margin: 20px 0;
        }
    </style>
</head>
<body>
    <div class="container">
        <h2>Match verified</h2>
        <p class="score">%s %d &ndash; %d %s</p>
        <p>Both teams have confirmed every game. The full score sheet is available <a href="%s">here</a>.</p>
    </div>
</body>
</html>`, match.HomeTeamID, homeWins, awayWins, match.AwayTeamID, url)
}
