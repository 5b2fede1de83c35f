package main

import (
	"context"
	"log"
	"os"
	"strings"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"google.golang.org/api/option"

	matchdb "github.com/rackside/league-sync/repos/matchdb"
	resend "github.com/rackside/league-sync/repos/resend"

	auth "github.com/rackside/league-sync/pkg/auth"

	admin "github.com/rackside/league-sync/services/admin"
	confirm "github.com/rackside/league-sync/services/confirm"
	lineup "github.com/rackside/league-sync/services/lineup"
	stats "github.com/rackside/league-sync/services/stats"
)

func main() {
	ctx := context.Background()

	projectID := os.Getenv("FIREBASE_PROJECT_ID")
	credentialsJSON := os.Getenv("FIREBASE_CREDENTIALS_JSON")
	port := os.Getenv("PORT")
	allowOrigins := os.Getenv("CORS_HOSTS")
	hostURL := os.Getenv("HOST_URL")

	credentialsOption := option.WithCredentialsJSON([]byte(credentialsJSON))

	firestoreClient, err := firestore.NewClient(ctx, projectID, credentialsOption)
	if err != nil {
		log.Fatalf("Failed to create Firestore client: %v", err)
	}
	defer firestoreClient.Close()

	firebaseApp, err := firebase.NewApp(ctx, nil, credentialsOption)
	if err != nil {
		log.Fatalf("error initializing app: %v\n", err)
	}

	matchStore := matchdb.NewService(firestoreClient)
	resendService := resend.NewService(firestoreClient, hostURL)

	adminService := admin.NewAdminService(firestoreClient, firebaseApp, resendService)
	confirmManager := confirm.NewManager(matchStore, matchStore, resendService)
	lineupService := lineup.NewService(matchStore)
	statsService := stats.NewStatsService(matchStore)

	config := cors.DefaultConfig()
	config.AllowOrigins = strings.Split(allowOrigins, ",")
	config.AllowCredentials = true
	config.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Access-Control-Allow-Origin"}

	router := gin.Default()
	router.Use(cors.New(config))

	adminRouter := router.Group("/admin/v1")
	adminRouter.Use(auth.AuthMiddleware(firebaseApp))

	confirmRouter := router.Group("/confirm/v1")
	confirmRouter.Use(auth.AuthMiddleware(firebaseApp))

	lineupRouter := router.Group("/lineup/v1")
	lineupRouter.Use(auth.AuthMiddleware(firebaseApp))

	statsRouter := router.Group("/stats/v1")

	admin.NewHTTPHandler(admin.HTTPOptions{
		Service: adminService,
		Router:  adminRouter,
	})

	confirm.NewHTTPHandler(confirm.HTTPOptions{
		Manager: confirmManager,
		Router:  confirmRouter,
	})

	lineup.NewHTTPHandler(lineup.HTTPOptions{
		Service: lineupService,
		Router:  lineupRouter,
	})

	stats.NewHTTPHandler(stats.HTTPOptions{
		Service: statsService,
		Router:  statsRouter,
	})

	log.Fatal(router.Run(":" + port))
}
