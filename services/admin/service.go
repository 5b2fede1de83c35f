package admin

import (
	"context"
	"errors"
	"log"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	auth "firebase.google.com/go/v4/auth"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/gin-gonic/gin"
	access "github.com/rackside/league-sync/pkg/accessCode"
	resend "github.com/rackside/league-sync/repos/resend"
)

var ErrInvalidAccessCode = errors.New("not valid access code")

// AdminService hands out scorekeeper access to matches. Each match has a
// secret in Firestore; captains get it mailed as an opaque code and claiming
// the code puts their user on the match's allowed list.
type AdminService struct {
	firestoreClient *firestore.Client
	firebaseApp     *firebase.App
	resendService   *resend.Service
}

func NewAdminService(firestoreClient *firestore.Client, firebaseApp *firebase.App, resendService *resend.Service) *AdminService {
	return &AdminService{
		firestoreClient: firestoreClient,
		firebaseApp:     firebaseApp,
		resendService:   resendService,
	}
}

// ClaimAccess mails the requesting captain an access code for the match and
// grants the requester itself access right away.
func (s *AdminService) ClaimAccess(c *gin.Context, request resend.AccessRequest) error {
	token := c.MustGet("token").(*auth.Token)

	secret, err := s.matchSecret(c, request.MatchID)
	if err != nil {
		log.Printf("Failed to get match secret from Firestore: %v\n", err)
		return err
	}

	accessCode := access.GenerateCode(request.MatchID, secret)

	err = s.resendService.SendAccessMail(c, request, accessCode)
	if err != nil {
		return err
	}

	// The grant does not need to hold up the response.
	go func() {
		if err := s.resendService.GrantAccess(context.Background(), request.MatchID, token.UID); err != nil {
			log.Printf("Failed to grant access for %s: %v\n", request.MatchID, err)
		}
	}()
	return nil
}

// AddMatchAccess redeems a mailed access code for the calling user.
func (s *AdminService) AddMatchAccess(c *gin.Context, matchID, secret string) error {
	token := c.MustGet("token").(*auth.Token)

	stored, err := s.matchSecret(c, matchID)
	if err != nil {
		log.Printf("Failed to get match secret from Firestore: %v\n", err)
		return err
	}

	if secret != stored {
		return ErrInvalidAccessCode
	}
	return s.resendService.GrantAccess(c, matchID, token.UID)
}

// matchSecret reads the match's secret, minting one on first use.
func (s *AdminService) matchSecret(ctx context.Context, matchID string) (string, error) {
	docRef := s.firestoreClient.Collection("MatchSecrets").Doc(matchID)

	doc, err := docRef.Get(ctx)
	if status.Code(err) == codes.NotFound {
		secret := access.NewSecret()
		_, err = docRef.Create(ctx, map[string]interface{}{
			"secret":        secret,
			"allowed_users": []string{},
		})
		if status.Code(err) == codes.AlreadyExists {
			// Lost the race, read the winner's secret.
			doc, err = docRef.Get(ctx)
		} else if err == nil {
			return secret, nil
		}
	}
	if err != nil {
		return "", err
	}

	fieldValue, err := doc.DataAt("secret")
	if err != nil {
		return "", err
	}
	secretString, ok := fieldValue.(string)
	if !ok {
		return "", errors.New("match secret is not a string")
	}
	return secretString, nil
}
