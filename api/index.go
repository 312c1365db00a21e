package handler

import (
	"context"
	"net/http"
	"sync"

	config "dinecast-api/configs"
	"dinecast-api/internal/container"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var (
	app  *gin.Engine
	once sync.Once
)

// setupApp はGinアプリケーションを初期化します。
// サーバーレス環境では、リクエストごとに初期化が走らないようsync.Onceで一度だけ実行します。
func setupApp() *gin.Engine {
	once.Do(func() {
		// .envファイルはVercelの環境変数設定から読み込まれるため、ここではgodotenvを呼び出しません。
		cfg := config.LoadConfig()
		config.SetupLogger(cfg)
		gin.SetMode(gin.ReleaseMode)

		c, err := container.New(context.Background(), cfg)
		if err != nil {
			log.Error().Err(err).Msg("❌ [setupApp] 初期化に失敗しました")
			app = gin.New()
			app.Any("/*path", func(ctx *gin.Context) {
				ctx.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "service initialization failed"})
			})
			return
		}
		app = c.Router(context.Background())
		log.Info().Msg("🟢 [setupApp] Gin application initialized")
	})
	return app
}

// Handler はVercelのエントリーポイントです。
func Handler(w http.ResponseWriter, r *http.Request) {
	setupApp().ServeHTTP(w, r)
}
