package report

const dividendHTML = `<div style="font-family:sans-serif;max-width:800px;margin:0 auto">
  <h2 style="color:#1565c0">高配当銘柄アラート - {{.Date}}</h2>
  <p>配当利回り <strong>{{.Threshold}}%以上</strong> の東証上場銘柄: <strong>{{.Count}}件</strong></p>

  <table style="border-collapse:collapse;width:100%;font-size:14px">
    <thead>
      <tr style="background:#1565c0;color:#fff">
        <th style="padding:8px 12px;text-align:left">コード</th>
        <th style="padding:8px 12px;text-align:left">銘柄名</th>
        <th style="padding:8px 12px;text-align:left">セクター</th>
        <th style="padding:8px 12px;text-align:right">配当利回り</th>
        <th style="padding:8px 12px;text-align:right">株価</th>
        <th style="padding:8px 12px;text-align:right">年間配当</th>
      </tr>
    </thead>
    <tbody>
    {{- range .Rows}}
      <tr>
        <td style="padding:6px 12px;border:1px solid #ddd">{{.Code}}</td>
        <td style="padding:6px 12px;border:1px solid #ddd">{{.Name}}</td>
        <td style="padding:6px 12px;border:1px solid #ddd">{{.Sector}}</td>
        <td style="padding:6px 12px;border:1px solid #ddd;text-align:right;font-weight:bold;color:#d32f2f">{{.Yield}}</td>
        <td style="padding:6px 12px;border:1px solid #ddd;text-align:right">{{.Price}}円</td>
        <td style="padding:6px 12px;border:1px solid #ddd;text-align:right">{{.Dividend}}円</td>
      </tr>
    {{- end}}
    </tbody>
  </table>

  <div style="margin-top:20px;padding:12px;background:#f5f5f5;border-radius:4px;font-size:13px;color:#666">
    <p style="margin:4px 0">スキャン銘柄数: {{.Scanned}}</p>
    {{- if .Failed}}
    <p style="margin:4px 0">一括取得失敗: {{.Failed}} (個別再取得 {{.Recovered}})</p>
    {{- end}}
    <p style="margin:4px 0">所要時間: {{.Duration}}</p>
    <p style="margin:4px 0;color:#999">※ 配当利回りは過去12ヶ月の実績値です。特別配当を含む場合があります。</p>
    <p style="margin:4px 0;color:#999">※ 投資判断は自己責任でお願いします。</p>
  </div>
</div>
`

const portfolioHTML = `<div style="font-family:sans-serif;max-width:700px;margin:0 auto">
  <h2 style="color:#2e7d32">保有銘柄レポート - {{.Session}}</h2>
  <p style="color:#666">{{.Time}}</p>

  <table style="border-collapse:collapse;width:100%;font-size:14px">
    <thead>
      <tr style="background:#2e7d32;color:#fff">
        <th style="padding:8px 12px;text-align:left">コード</th>
        <th style="padding:8px 12px;text-align:left">銘柄名</th>
        <th style="padding:8px 12px;text-align:right">保有数</th>
        <th style="padding:8px 12px;text-align:right">現在値</th>
        <th style="padding:8px 12px;text-align:right">時価</th>
      </tr>
    </thead>
    <tbody>
    {{- range .Rows}}
      <tr>
        <td style="padding:6px 12px;border:1px solid #ddd">{{.Code}}</td>
        <td style="padding:6px 12px;border:1px solid #ddd">{{.Name}}</td>
        <td style="padding:6px 12px;border:1px solid #ddd;text-align:right">{{.Shares}}</td>
        <td style="padding:6px 12px;border:1px solid #ddd;text-align:right;font-weight:bold">{{.Price}}円</td>
        <td style="padding:6px 12px;border:1px solid #ddd;text-align:right">{{.Value}}円</td>
      </tr>
    {{- end}}
    </tbody>
    <tfoot>
      <tr style="background:#e8f5e9;font-weight:bold">
        <td colspan="4" style="padding:8px 12px;border:1px solid #ddd;text-align:right">合計時価</td>
        <td style="padding:8px 12px;border:1px solid #ddd;text-align:right;font-size:16px">{{.Total}}円</td>
      </tr>
      {{- if .Change}}
      <tr>
        <td colspan="4" style="padding:6px 12px;border:1px solid #ddd;text-align:right;color:#666">前回比 ({{.Previous}})</td>
        <td style="padding:6px 12px;border:1px solid #ddd;text-align:right">{{.Change}}円</td>
      </tr>
      {{- end}}
    </tfoot>
  </table>
</div>
`
